package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"refguard/internal/core/match"
	perr "refguard/internal/platform/errors"
)

// Searx is the web-search fallback against a self-hosted SearxNG instance.
// It is weaker evidence than the academic databases: it can confirm the
// paper exists on an academic domain but cannot verify authors, so a hit
// returns Found with empty authors.
type Searx struct {
	Client  *http.Client
	BaseURL string
}

// Name implements Backend
func (s *Searx) Name() string { return "Web Search" }

// Local implements Backend
func (s *Searx) Local() bool { return false }

// Domains whose results count as scholarly evidence
var academicDomains = []string{
	"scholar.google", "arxiv.org", "semanticscholar.org",
	"researchgate.net", "academia.edu", "acm.org", "ieee.org",
	"springer.com", "sciencedirect.com", "wiley.com", "nature.com",
	"pnas.org", "nih.gov", "pubmed", "jstor.org", "aclanthology.org",
	"aclweb.org", "openreview.net", "neurips.cc",
	"proceedings.mlr.press", "jmlr.org", "ssrn.com", "europepmc.org",
	"ncbi.nlm.nih.gov", "biorxiv.org", "medrxiv.org", "plos.org",
	"frontiersin.org", "mdpi.com", "tandfonline.com", "cambridge.org",
	"oup.com", "sagepub.com", "dblp.org", ".edu/", ".ac.uk/",
}

func isAcademicURL(u string) bool {
	lower := strings.ToLower(u)
	for _, d := range academicDomains {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}

type searxResponse struct {
	Results []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"results"`
}

// Query implements Backend
func (s *Searx) Query(ctx context.Context, title string) Outcome {
	if s.BaseURL == "" {
		return Errored(perr.InvalidArgf("searx base url not configured"))
	}
	u := fmt.Sprintf("%s/search?q=%s&format=json", s.BaseURL, url.QueryEscape(fmt.Sprintf("%q", title)))

	body, bad, ok := get(ctx, s.Client, u, nil)
	if !ok {
		return bad
	}

	var parsed searxResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "searx decode"))
	}

	for _, r := range parsed.Results {
		if !isAcademicURL(r.URL) {
			continue
		}
		if match.TitlesMatchLenient(title, r.Title) {
			return Found(r.Title, nil, r.URL)
		}
	}
	return NotFound()
}
