package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"refguard/internal/core/match"
	perr "refguard/internal/platform/errors"
)

const crossRefBase = "https://api.crossref.org"

// CrossRef queries the CrossRef works search API. A configured mailto puts
// requests in the polite pool and unlocks the faster rate tier.
type CrossRef struct {
	Client  *http.Client
	Mailto  string
	BaseURL string
}

// Name implements Backend
func (c *CrossRef) Name() string { return "CrossRef" }

// Local implements Backend
func (c *CrossRef) Local() bool { return false }

type crossRefSearch struct {
	Message struct {
		Items []crossRefWork `json:"items"`
	} `json:"message"`
}

type crossRefWork struct {
	Title  []string `json:"title"`
	URL    string   `json:"URL"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		Name   string `json:"name"`
	} `json:"author"`
}

func (w crossRefWork) authors() []string {
	out := make([]string, 0, len(w.Author))
	for _, a := range w.Author {
		switch {
		case a.Family != "" && a.Given != "":
			out = append(out, a.Given+" "+a.Family)
		case a.Family != "":
			out = append(out, a.Family)
		case a.Name != "":
			out = append(out, a.Name)
		}
	}
	return out
}

// Query implements Backend
func (c *CrossRef) Query(ctx context.Context, title string) Outcome {
	base := c.BaseURL
	if base == "" {
		base = crossRefBase
	}
	u := fmt.Sprintf("%s/works?query.bibliographic=%s&rows=5", base, url.QueryEscape(title))

	body, bad, ok := get(ctx, c.Client, u, map[string]string{
		"User-Agent": UserAgent(c.Mailto),
	})
	if !ok {
		return bad
	}

	var parsed crossRefSearch
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "crossref decode"))
	}

	for _, item := range parsed.Message.Items {
		if len(item.Title) == 0 {
			continue
		}
		if match.TitlesMatch(title, item.Title[0]) {
			return Found(item.Title[0], item.authors(), item.URL)
		}
	}
	return NotFound()
}
