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

const openAlexBase = "https://api.openalex.org"

// OpenAlex queries the OpenAlex works API. Author metadata from OpenAlex
// is known noisy; the checker suppresses its author-mismatch verdicts
// unless explicitly enabled.
type OpenAlex struct {
	Client  *http.Client
	APIKey  string
	Mailto  string
	BaseURL string
}

// Name implements Backend
func (o *OpenAlex) Name() string { return "OpenAlex" }

// Local implements Backend
func (o *OpenAlex) Local() bool { return false }

type openAlexSearch struct {
	Results []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Authorships []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
	} `json:"results"`
}

// Query implements Backend
func (o *OpenAlex) Query(ctx context.Context, title string) Outcome {
	base := o.BaseURL
	if base == "" {
		base = openAlexBase
	}
	words := match.QueryWords(title)
	if len(words) == 0 {
		return NotFound()
	}
	u := fmt.Sprintf("%s/works?filter=title.search:%s&per-page=5",
		base, url.QueryEscape(strings.Join(words, " ")))
	if o.APIKey != "" {
		u += "&api_key=" + url.QueryEscape(o.APIKey)
	}

	body, bad, ok := get(ctx, o.Client, u, map[string]string{
		"User-Agent": UserAgent(o.Mailto),
	})
	if !ok {
		return bad
	}

	var parsed openAlexSearch
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "openalex decode"))
	}

	for _, w := range parsed.Results {
		if !match.TitlesMatch(title, w.Title) {
			continue
		}
		authors := make([]string, 0, len(w.Authorships))
		for _, a := range w.Authorships {
			if a.Author.DisplayName != "" {
				authors = append(authors, a.Author.DisplayName)
			}
		}
		return Found(w.Title, authors, w.ID)
	}
	return NotFound()
}
