// Package service runs the validation pipeline: cache probe, DOI
// fast-path, rate-limited backend fan-out with early exit, verdict fold,
// and the worker pool with its single retry pass.
package service

import (
	"context"
	"net/http"
	"time"

	"refguard/internal/adapters/backends"
	"refguard/internal/adapters/doi"
	"refguard/internal/platform/logger"
	"refguard/internal/services/validate/domain"
	"refguard/internal/services/validate/repo"
)

// Svc is the validation service. One instance serves a whole process; the
// HTTP client, the rate limiter registry, and the cache are shared by all
// workers.
type Svc struct {
	cfg      domain.Config
	cache    *repo.Cache
	limiters *Limiters
	client   *http.Client
	probe    *doi.Probe
	backends []backends.Backend
	locals   []*backends.LocalIndex
	log      logger.Logger

	// sleep is a seam so tests can skip Retry-After waits
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes construction
type Option func(*Svc)

// WithBackends replaces the built backend set (tests, embedders)
func WithBackends(bks ...backends.Backend) Option {
	return func(s *Svc) { s.backends = bks }
}

// WithHTTPClient replaces the shared HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Svc) { s.client = c }
}

// WithProbe replaces the DOI probe
func WithProbe(p *doi.Probe) Option {
	return func(s *Svc) { s.probe = p }
}

// WithSleep replaces the Retry-After sleeper
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Svc) { s.sleep = f }
}

// New builds the service. The backend set defaults to everything the
// config enables, with offline indexes replacing their online twins.
func New(cfg domain.Config, cache *repo.Cache, opts ...Option) (*Svc, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Svc{
		cfg:      cfg,
		cache:    cache,
		limiters: NewLimiters(cfg.CrossRefMailto != "", cfg.S2APIKey != ""),
		client:   &http.Client{},
		log:      *logger.Named("validate"),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	if s.probe == nil {
		s.probe = doi.NewProbe(s.client, cfg.CrossRefMailto)
	}
	if s.backends == nil {
		s.buildBackends()
	}
	return s, nil
}

// Close releases the offline index handles. The cache is owned by the
// caller.
func (s *Svc) Close() error {
	var first error
	for _, l := range s.locals {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildBackends assembles the full source list. Disabled names are
// filtered at selection time so the retry pass can reuse the list.
func (s *Svc) buildBackends() {
	add := func(b backends.Backend) { s.backends = append(s.backends, b) }

	add(&backends.CrossRef{Client: s.client, Mailto: s.cfg.CrossRefMailto})
	add(&backends.Arxiv{Client: s.client})

	if s.cfg.DBLPIndexPath != "" {
		if idx, err := backends.OpenLocalIndex("DBLP", s.cfg.DBLPIndexPath); err == nil {
			s.locals = append(s.locals, idx)
			add(idx)
		} else {
			s.log.Warn().Err(err).Str("path", s.cfg.DBLPIndexPath).Msg("dblp index unavailable, falling back to online")
			add(&backends.DBLP{Client: s.client})
		}
	} else {
		add(&backends.DBLP{Client: s.client})
	}

	add(&backends.SemanticScholar{Client: s.client, APIKey: s.cfg.S2APIKey})

	if s.cfg.ACLIndexPath != "" {
		if idx, err := backends.OpenLocalIndex("ACL Anthology", s.cfg.ACLIndexPath); err == nil {
			s.locals = append(s.locals, idx)
			add(idx)
		} else {
			s.log.Warn().Err(err).Str("path", s.cfg.ACLIndexPath).Msg("acl index unavailable, skipping")
		}
	}

	add(&backends.EuropePMC{Client: s.client})
	add(&backends.PubMed{Client: s.client})

	if s.cfg.OpenAlexIndexPath != "" {
		if idx, err := backends.OpenLocalIndex("OpenAlex", s.cfg.OpenAlexIndexPath); err == nil {
			s.locals = append(s.locals, idx)
			add(idx)
		} else {
			s.log.Warn().Err(err).Str("path", s.cfg.OpenAlexIndexPath).Msg("openalex index unavailable, falling back to online")
			add(&backends.OpenAlex{Client: s.client, APIKey: s.cfg.OpenAlexKey, Mailto: s.cfg.CrossRefMailto})
		}
	} else {
		add(&backends.OpenAlex{Client: s.client, APIKey: s.cfg.OpenAlexKey, Mailto: s.cfg.CrossRefMailto})
	}

	if s.cfg.SearxURL != "" {
		add(&backends.Searx{Client: s.client, BaseURL: s.cfg.SearxURL})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
