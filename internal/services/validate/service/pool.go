package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"refguard/internal/core/citation"
	"refguard/internal/platform/metrics"
	"refguard/internal/services/validate/domain"
)

// Run validates a batch of references over a bounded worker pool and
// returns the results in input order. Progress events go to the optional
// subscriber channel; sends block on a full channel (backpressure by
// design) but are abandoned on cancellation.
//
// After the first pass, references that came back NotFound with failed
// backends get exactly one retry against only those backends, with a
// doubled timeout. Cancellation stops new work; in-flight queries run to
// their own deadlines.
func (s *Svc) Run(ctx context.Context, refs []citation.Reference, events chan<- domain.Event) []citation.ValidationResult {
	total := len(refs)
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Int("total", total).Logger()
	log.Info().Int("workers", s.cfg.Workers).Msg("validation run starting")

	emit := func(e domain.Event) {
		if events == nil {
			return
		}
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	results := make([]citation.ValidationResult, total)
	done := make([]bool, total)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for i := range refs {
		// Cooperative cancellation, checked at worker pickup
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ref := refs[i]
			emit(domain.Checking{Index: i, Total: total, Title: ref.Title})

			res := s.validateRef(ctx, ref, i, s.cfg.DBTimeout, nil, emit)

			if len(res.FailedDBs) > 0 {
				emit(domain.Warning{
					Index:     i,
					Title:     ref.Title,
					FailedDBs: res.FailedDBs,
					Message:   warningMessage(res),
				})
			}
			emit(domain.Result{Index: i, Total: total, Result: res})

			results[i] = res
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	// Retry pass: only NotFound results with failed backends qualify
	var retry []int
	for i := range refs {
		if done[i] && results[i].Status == citation.StatusNotFound && len(results[i].FailedDBs) > 0 {
			retry = append(retry, i)
		}
	}

	if len(retry) > 0 && ctx.Err() == nil {
		emit(domain.RetryPass{Count: len(retry)})
		metrics.RetryPasses.Inc()
		log.Info().Int("count", len(retry)).Msg("retry pass starting")

		rg := new(errgroup.Group)
		rg.SetLimit(s.cfg.Workers)
		for _, i := range retry {
			if ctx.Err() != nil {
				break
			}
			rg.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				res := s.validateRef(ctx, refs[i], i, 2*s.cfg.DBTimeout, results[i].FailedDBs, emit)

				// Only an improvement replaces the original
				if res.Status != citation.StatusNotFound {
					// Side-channel findings from the first pass carry over
					res.DOIInfo = results[i].DOIInfo
					res.ArxivInfo = results[i].ArxivInfo
					emit(domain.Result{Index: i, Total: total, Result: res})
					results[i] = res
				}
				return nil
			})
		}
		_ = rg.Wait()
	}

	out := make([]citation.ValidationResult, 0, total)
	for i := range results {
		if done[i] {
			metrics.ReferencesChecked.WithLabelValues(string(results[i].Status)).Inc()
			out = append(out, results[i])
		}
	}
	log.Info().Int("completed", len(out)).Msg("validation run finished")
	return out
}

func warningMessage(res citation.ValidationResult) string {
	context := "not found in other DBs (will retry)"
	switch res.Status {
	case citation.StatusVerified:
		context = "verified via " + res.Source
	case citation.StatusAuthorMismatch:
		context = "author mismatch via " + res.Source
	}
	return fmt.Sprintf("%s timed out or failed; %s", strings.Join(res.FailedDBs, ", "), context)
}
