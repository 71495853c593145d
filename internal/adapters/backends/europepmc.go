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

const europePMCBase = "https://www.ebi.ac.uk"

// EuropePMC queries the Europe PMC REST search API
type EuropePMC struct {
	Client  *http.Client
	BaseURL string
}

// Name implements Backend
func (e *EuropePMC) Name() string { return "Europe PMC" }

// Local implements Backend
func (e *EuropePMC) Local() bool { return false }

type europePMCSearch struct {
	ResultList struct {
		Result []struct {
			ID           string `json:"id"`
			Source       string `json:"source"`
			Title        string `json:"title"`
			AuthorString string `json:"authorString"`
		} `json:"result"`
	} `json:"resultList"`
}

// Query implements Backend
func (e *EuropePMC) Query(ctx context.Context, title string) Outcome {
	base := e.BaseURL
	if base == "" {
		base = europePMCBase
	}
	q := fmt.Sprintf("TITLE:%q", title)
	u := fmt.Sprintf("%s/europepmc/webservices/rest/search?query=%s&format=json&pageSize=5",
		base, url.QueryEscape(q))

	body, bad, ok := get(ctx, e.Client, u, nil)
	if !ok {
		return bad
	}

	var parsed europePMCSearch
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "europe pmc decode"))
	}

	for _, r := range parsed.ResultList.Result {
		found := strings.TrimSuffix(r.Title, ".")
		if !match.TitlesMatch(title, found) {
			continue
		}
		pageURL := ""
		if r.ID != "" && r.Source != "" {
			pageURL = fmt.Sprintf("https://europepmc.org/article/%s/%s", r.Source, r.ID)
		}
		return Found(found, splitAuthorString(r.AuthorString), pageURL)
	}
	return NotFound()
}

// splitAuthorString splits Europe PMC's "Doe J, Roe A." author blob
func splitAuthorString(s string) []string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
