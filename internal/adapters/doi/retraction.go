package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"refguard/internal/core/match"
)

// Retraction is the outcome of a retraction check. A positive result does
// not change the verification verdict; it is surfaced to the user.
type Retraction struct {
	Retracted bool
	DOI       string
	Source    string
}

// minTitleLen guards the by-title search against junk queries
const minTitleLen = 10

type crossRefWork struct {
	Title    []string          `json:"title"`
	UpdateTo []crossRefUpdate  `json:"update-to"`
	Relation crossRefRelations `json:"relation"`
}

type crossRefUpdate struct {
	Type string `json:"type"`
	DOI  string `json:"DOI"`
}

type crossRefRelations struct {
	IsRetractedBy          []crossRefRelID `json:"is-retracted-by"`
	HasExpressionOfConcern []crossRefRelID `json:"has-expression-of-concern"`
}

type crossRefRelID struct {
	ID string `json:"id"`
}

// classify inspects a CrossRef work record for retraction markers
func classify(w crossRefWork) Retraction {
	for _, u := range w.UpdateTo {
		switch strings.ToLower(u.Type) {
		case "retraction", "removal":
			source := u.Type
			if source == "" {
				source = "Retraction"
			}
			return Retraction{Retracted: true, DOI: u.DOI, Source: source}
		}
	}
	if len(w.Relation.IsRetractedBy) > 0 {
		return Retraction{Retracted: true, DOI: w.Relation.IsRetractedBy[0].ID, Source: "Retraction"}
	}
	if len(w.Relation.HasExpressionOfConcern) > 0 {
		return Retraction{Retracted: true, DOI: w.Relation.HasExpressionOfConcern[0].ID, Source: "Expression of Concern"}
	}
	return Retraction{}
}

// RetractionByDOI checks one DOI against CrossRef for update-to and
// relation markers. Failures come back clean: the retraction check is
// advisory, never blocking.
func (p *Probe) RetractionByDOI(ctx context.Context, doi string) Retraction {
	if doi == "" {
		return Retraction{}
	}
	base := p.CrossRefBase
	if base == "" {
		base = crossRefBase
	}

	body, ok := p.fetch(ctx, fmt.Sprintf("%s/works/%s", base, url.PathEscape(doi)))
	if !ok {
		return Retraction{}
	}

	var payload struct {
		Message crossRefWork `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.log.Debug().Err(err).Str("doi", doi).Msg("retraction payload decode failed")
		return Retraction{}
	}
	return classify(payload.Message)
}

// RetractionByTitle searches CrossRef for updated works matching the
// title. Used when a reference verified without a DOI.
func (p *Probe) RetractionByTitle(ctx context.Context, title string) Retraction {
	if len(title) < minTitleLen {
		return Retraction{}
	}
	base := p.CrossRefBase
	if base == "" {
		base = crossRefBase
	}

	u := fmt.Sprintf("%s/works?query.title=%s&filter=has-update:true&rows=5",
		base, url.QueryEscape(title))
	body, ok := p.fetch(ctx, u)
	if !ok {
		return Retraction{}
	}

	var payload struct {
		Message struct {
			Items []crossRefWork `json:"items"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Retraction{}
	}

	for _, item := range payload.Message.Items {
		if len(item.Title) == 0 || !match.TitlesMatch(title, item.Title[0]) {
			continue
		}
		if r := classify(item); r.Retracted {
			return r
		}
	}
	return Retraction{}
}

func (p *Probe) fetch(ctx context.Context, url string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", p.userAgent())

	resp, err := p.Client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("retraction check request failed")
		return nil, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false
	}
	return body, true
}
