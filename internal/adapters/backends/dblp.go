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

const dblpBase = "https://dblp.org"

// DBLP queries the public dblp.org search API. When an offline DBLP index
// is configured the local variant is used instead; both report the same
// backend name so cache scopes and rate policy line up.
type DBLP struct {
	Client  *http.Client
	BaseURL string
}

// Name implements Backend
func (d *DBLP) Name() string { return "DBLP" }

// Local implements Backend
func (d *DBLP) Local() bool { return false }

type dblpSearch struct {
	Result struct {
		Hits struct {
			Hit []struct {
				Info dblpInfo `json:"info"`
			} `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

type dblpInfo struct {
	Title   string      `json:"title"`
	URL     string      `json:"url"`
	Authors dblpAuthors `json:"authors"`
}

// dblpAuthors absorbs dblp's habit of emitting either a single author
// object or an array under the same key
type dblpAuthors struct {
	Names []string
}

type dblpAuthor struct {
	Text string `json:"text"`
}

// UnmarshalJSON handles both the single-object and array forms
func (a *dblpAuthors) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if len(wrapper.Author) == 0 {
		return nil
	}
	if wrapper.Author[0] == '[' {
		var list []dblpAuthor
		if err := json.Unmarshal(wrapper.Author, &list); err != nil {
			return err
		}
		for _, au := range list {
			a.Names = append(a.Names, cleanDBLPName(au.Text))
		}
		return nil
	}
	var one dblpAuthor
	if err := json.Unmarshal(wrapper.Author, &one); err != nil {
		return err
	}
	a.Names = append(a.Names, cleanDBLPName(one.Text))
	return nil
}

// cleanDBLPName strips dblp's homonym discriminator suffix ("Wei Wang 0017")
func cleanDBLPName(name string) string {
	fields := strings.Fields(name)
	if len(fields) >= 2 {
		last := fields[len(fields)-1]
		if len(last) == 4 && strings.Trim(last, "0123456789") == "" {
			return strings.Join(fields[:len(fields)-1], " ")
		}
	}
	return name
}

// Query implements Backend
func (d *DBLP) Query(ctx context.Context, title string) Outcome {
	base := d.BaseURL
	if base == "" {
		base = dblpBase
	}
	words := match.QueryWords(title)
	if len(words) == 0 {
		return NotFound()
	}
	u := fmt.Sprintf("%s/search/publ/api?q=%s&format=json&h=10", base, url.QueryEscape(strings.Join(words, " ")))

	body, bad, ok := get(ctx, d.Client, u, nil)
	if !ok {
		return bad
	}

	var parsed dblpSearch
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "dblp decode"))
	}

	for _, hit := range parsed.Result.Hits.Hit {
		// dblp titles carry a trailing period
		found := strings.TrimSuffix(hit.Info.Title, ".")
		if match.TitlesMatch(title, found) {
			return Found(found, hit.Info.Authors.Names, hit.Info.URL)
		}
	}
	return NotFound()
}
