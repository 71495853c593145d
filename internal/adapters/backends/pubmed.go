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

const pubMedBase = "https://eutils.ncbi.nlm.nih.gov"

// PubMed queries NCBI E-utilities: esearch for PMIDs, then esummary for
// metadata. Both calls share the caller's deadline.
type PubMed struct {
	Client  *http.Client
	BaseURL string
}

// Name implements Backend
func (p *PubMed) Name() string { return "PubMed" }

// Local implements Backend
func (p *PubMed) Local() bool { return false }

type pubMedESearch struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubMedESummary struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubMedDoc struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Query implements Backend
func (p *PubMed) Query(ctx context.Context, title string) Outcome {
	base := p.BaseURL
	if base == "" {
		base = pubMedBase
	}

	searchURL := fmt.Sprintf("%s/entrez/eutils/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=5",
		base, url.QueryEscape(title+"[Title]"))
	body, bad, ok := get(ctx, p.Client, searchURL, nil)
	if !ok {
		return bad
	}
	var search pubMedESearch
	if err := json.Unmarshal(body, &search); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "pubmed esearch decode"))
	}
	if len(search.ESearchResult.IDList) == 0 {
		return NotFound()
	}

	summaryURL := fmt.Sprintf("%s/entrez/eutils/esummary.fcgi?db=pubmed&id=%s&retmode=json",
		base, strings.Join(search.ESearchResult.IDList, ","))
	body, bad, ok = get(ctx, p.Client, summaryURL, nil)
	if !ok {
		return bad
	}
	var summary pubMedESummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return Errored(perr.Wrap(err, perr.ErrorCodeBadResponse, "pubmed esummary decode"))
	}

	for _, id := range search.ESearchResult.IDList {
		raw, ok := summary.Result[id]
		if !ok {
			continue
		}
		var doc pubMedDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		found := strings.TrimSuffix(doc.Title, ".")
		if !match.TitlesMatch(title, found) {
			continue
		}
		authors := make([]string, 0, len(doc.Authors))
		for _, a := range doc.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		return Found(found, authors, "https://pubmed.ncbi.nlm.nih.gov/"+id+"/")
	}
	return NotFound()
}
