package match

import (
	"reflect"
	"testing"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Attention Is All You Need", "attentionisallyouneed"},
		{"Attention is All you Need", "attentionisallyouneed"},
		{"  Deep   Learning!? ", "deeplearning"},
		{"Schrödinger's Cat", "schrodingerscat"},
		{"BERT: Pre-training of Deep Bidirectional Transformers", "bertpretrainingofdeepbidirectionaltransformers"},
		{"", ""},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := Fingerprint(c.in); got != c.want {
			t.Fatalf("Fingerprint(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRatio(t *testing.T) {
	t.Parallel()

	if r := Ratio("abcd", "abcd"); r != 1 {
		t.Fatalf("identical strings should score 1, got %f", r)
	}
	if r := Ratio("abcd", "wxyz"); r != 0 {
		t.Fatalf("disjoint strings should score 0, got %f", r)
	}
	if r := Ratio("", ""); r != 1 {
		t.Fatalf("two empties should score 1, got %f", r)
	}
	if r := Ratio("abc", ""); r != 0 {
		t.Fatalf("empty vs non-empty should score 0, got %f", r)
	}
}

func TestTitlesMatch(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		ref, found string
		want       bool
	}{
		{"case and punctuation", "Attention Is All You Need", "Attention is All you Need", true},
		{"single typo in long title", "Language Models are Few-Shot Learners", "Language Models are Few-Shot Learnars", true},
		{"subtitle dropped on found side", "ImageNet Classification with Deep Convolutional Neural Networks", "ImageNet Classification", true},
		{"long substring containment", "Proceedings: Generative Adversarial Networks for Image Synthesis", "Generative Adversarial Networks for Image Synthesis", true},
		{"different papers", "Attention Is All You Need", "Neural Machine Translation by Jointly Learning", false},
		{"short prefix not enough", "Going Deeper with Convolutions", "Going", false},
		{"empty found", "Some Title", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := TitlesMatch(c.ref, c.found); got != c.want {
				t.Fatalf("TitlesMatch(%q, %q) = %v, want %v", c.ref, c.found, got, c.want)
			}
		})
	}
}

func TestTitlesMatchLenient(t *testing.T) {
	t.Parallel()

	// A search result page wrapping the real title
	if !TitlesMatchLenient("Attention Is All You Need", "[1706.03762] Attention Is All You Need - arXiv") {
		t.Fatalf("lenient match should accept wrapped titles")
	}
	if TitlesMatchLenient("Graph Networks", "Completely Unrelated Result") {
		t.Fatalf("lenient match should still reject unrelated titles")
	}
}

func TestQueryWordsShortTitle(t *testing.T) {
	t.Parallel()

	got := QueryWords("Attention Is All You Need")
	want := []string{"attention", "need"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QueryWords = %v, want %v", got, want)
	}
}

func TestQueryWordsStopWordsAndLength(t *testing.T) {
	t.Parallel()

	got := QueryWords("The Very Best Model for Text and More")
	// "the", "very", "for", "and", "more" are stopped or short; "best" is 4 chars
	want := []string{"best", "model", "text"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QueryWords = %v, want %v", got, want)
	}
}

func TestQueryWordsCapsAtSixInTitleOrder(t *testing.T) {
	t.Parallel()

	got := QueryWords("Evaluating Robustness Generalization Calibration Uncertainty Interpretability Fairness Efficiency Considerations")
	if len(got) != 6 {
		t.Fatalf("expected 6 words, got %d: %v", len(got), got)
	}
	// Result must preserve title order
	order := map[string]int{}
	for i, w := range []string{"evaluating", "robustness", "generalization", "calibration", "uncertainty", "interpretability", "fairness", "efficiency", "considerations"} {
		order[w] = i
	}
	for i := 1; i < len(got); i++ {
		if order[got[i-1]] > order[got[i]] {
			t.Fatalf("words out of title order: %v", got)
		}
	}
}

func TestQueryWordsSplitsHyphens(t *testing.T) {
	t.Parallel()

	got := QueryWords("Self-Supervised Pre-Training")
	want := []string{"self", "supervised", "training"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QueryWords = %v, want %v", got, want)
	}
}

func TestQueryWordsStripsBraces(t *testing.T) {
	t.Parallel()

	got := QueryWords("{BERT} Embeddings")
	want := []string{"bert", "embeddings"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QueryWords = %v, want %v", got, want)
	}
}
