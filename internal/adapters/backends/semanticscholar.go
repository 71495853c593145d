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

const s2Base = "https://api.semanticscholar.org"

// SemanticScholar queries the S2 graph API. The keyless tier is severely
// throttled; an API key moves the limiter to 1/s.
type SemanticScholar struct {
	Client  *http.Client
	APIKey  string
	BaseURL string
}

// Name implements Backend
func (s *SemanticScholar) Name() string { return "Semantic Scholar" }

// Local implements Backend
func (s *SemanticScholar) Local() bool { return false }

type s2Search struct {
	Data []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"data"`
}

// Query implements Backend
func (s *SemanticScholar) Query(ctx context.Context, title string) Outcome {
	base := s.BaseURL
	if base == "" {
		base = s2Base
	}
	u := fmt.Sprintf("%s/graph/v1/paper/search?query=%s&fields=title,authors,url&limit=10",
		base, url.QueryEscape(title))

	hdr := map[string]string{}
	if s.APIKey != "" {
		hdr["x-api-key"] = s.APIKey
	}
	body, bad, ok := get(ctx, s.Client, u, hdr)
	if !ok {
		return bad
	}

	var parsed s2Search
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "semantic scholar decode"))
	}

	for _, p := range parsed.Data {
		if !match.TitlesMatch(title, p.Title) {
			continue
		}
		authors := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		return Found(p.Title, authors, p.URL)
	}
	return NotFound()
}
