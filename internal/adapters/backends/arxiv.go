package backends

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"refguard/internal/core/match"
	perr "refguard/internal/platform/errors"
)

const arxivBase = "https://export.arxiv.org"

// Arxiv queries the arXiv Atom export API
type Arxiv struct {
	Client  *http.Client
	BaseURL string
}

// Name implements Backend
func (a *Arxiv) Name() string { return "arXiv" }

// Local implements Backend
func (a *Arxiv) Local() bool { return false }

type arxivFeed struct {
	Entries []struct {
		Title   string `xml:"title"`
		ID      string `xml:"id"`
		Authors []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

// Query implements Backend
func (a *Arxiv) Query(ctx context.Context, title string) Outcome {
	base := a.BaseURL
	if base == "" {
		base = arxivBase
	}
	q := fmt.Sprintf(`ti:%q`, title)
	u := fmt.Sprintf("%s/api/query?search_query=%s&max_results=5", base, url.QueryEscape(q))

	body, bad, ok := get(ctx, a.Client, u, nil)
	if !ok {
		return bad
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "arxiv decode"))
	}

	for _, e := range feed.Entries {
		// Atom titles keep the feed's hard wrapping
		found := strings.Join(strings.Fields(e.Title), " ")
		if !match.TitlesMatch(title, found) {
			continue
		}
		authors := make([]string, 0, len(e.Authors))
		for _, au := range e.Authors {
			if au.Name != "" {
				authors = append(authors, au.Name)
			}
		}
		return Found(found, authors, e.ID)
	}
	return NotFound()
}
