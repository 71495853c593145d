// Command refguard validates a list of parsed references against the
// scholarly database federation and reports hallucinated citations.
//
// Input is the extractor's JSON reference list (a file or stdin). The
// exit code is non-zero when any reference fails verification, so the
// tool slots into CI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"refguard/internal/core/citation"
	"refguard/internal/platform/config"
	"refguard/internal/platform/logger"
	"refguard/internal/services/validate/domain"
	"refguard/internal/services/validate/repo"
	"refguard/internal/services/validate/service"
)

func mustSetEnv(k, v string) {
	if v != "" {
		_ = os.Setenv(k, v)
	}
}

func main() {
	l := logger.Get()

	var (
		input    = flag.String("input", "-", "reference list JSON ('-' for stdin)")
		workers  = flag.Int("workers", 0, "concurrent references (default from CHECK_WORKERS or 4)")
		timeout  = flag.Duration("timeout", 0, "per-backend query timeout (default from CHECK_DB_TIMEOUT or 10s)")
		disable  = flag.String("disable", "", "comma-separated backend names to disable")
		cacheArg = flag.String("cache", "", "query cache path (default from CACHE_PATH; empty = in-memory)")
		jsonOut  = flag.Bool("json", false, "print full results as JSON instead of the summary lines")
		clearAll = flag.Bool("clear-cache", false, "wipe the query cache before running")
		clearNeg = flag.Bool("clear-not-found", false, "drop negative cache entries before running")
		quiet    = flag.Bool("quiet", false, "no progress bar")
	)
	flag.Parse()

	// Flags override the CHECK_*/CACHE_* env namespaces
	if *workers > 0 {
		mustSetEnv("CHECK_WORKERS", strconv.Itoa(*workers))
	}
	if *timeout > 0 {
		mustSetEnv("CHECK_DB_TIMEOUT", timeout.String())
	}
	mustSetEnv("CHECK_DISABLED_DBS", *disable)
	mustSetEnv("CACHE_PATH", *cacheArg)

	cfg := domain.FromEnv(config.New())

	refs, err := loadReferences(*input)
	if err != nil {
		l.Fatal().Err(err).Str("input", *input).Msg("failed to load references")
	}
	if len(refs) == 0 {
		l.Fatal().Msg("no references in input")
	}

	cache, err := repo.Open(cfg.CachePath, cfg.CachePositiveTTL, cfg.CacheNegativeTTL)
	if err != nil {
		l.Fatal().Err(err).Str("path", cfg.CachePath).Msg("failed to open query cache")
	}
	defer func() { _ = cache.Close() }()

	if *clearAll {
		if err := cache.Clear(); err != nil {
			l.Warn().Err(err).Msg("failed to clear query cache")
		}
	} else if *clearNeg {
		if err := cache.ClearNotFound(); err != nil {
			l.Warn().Err(err).Msg("failed to clear negative cache entries")
		}
	}

	svc, err := service.New(cfg, cache)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	defer func() { _ = svc.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The channel is never closed: stray events from in-flight queries
	// that lost an early-exit race may still arrive after Run returns
	events := make(chan domain.Event, 256)
	runDone := make(chan struct{})
	drained := make(chan struct{})
	go func() { drainEvents(events, runDone, len(refs), *quiet || *jsonOut); close(drained) }()

	results := svc.Run(ctx, refs, events)
	close(runDone)
	<-drained

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			l.Fatal().Err(err).Msg("failed to encode results")
		}
	} else {
		printResults(results)
	}

	var stats citation.Stats
	for _, r := range results {
		stats.Add(r)
	}
	printSummary(stats, len(refs)-len(results))

	if stats.NotFound > 0 || stats.AuthorMismatch > 0 {
		os.Exit(1)
	}
}

func loadReferences(path string) ([]citation.Reference, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var refs []citation.Reference
	if err := json.NewDecoder(r).Decode(&refs); err != nil {
		return nil, fmt.Errorf("decode reference list: %w", err)
	}
	return refs, nil
}

// drainEvents consumes the progress stream until the run signals done; a
// slow terminal backpressures the workers, which is intended
func drainEvents(events <-chan domain.Event, runDone <-chan struct{}, total int, quiet bool) {
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("checking references"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	seen := make(map[int]bool, total)
	handle := func(e domain.Event) {
		switch ev := e.(type) {
		case domain.Result:
			if bar != nil && !seen[ev.Index] {
				_ = bar.Add(1)
			}
			seen[ev.Index] = true
		case domain.Warning:
			logger.Named("driver").Warn().
				Str("title", ev.Title).
				Strs("failed_dbs", ev.FailedDBs).
				Msg(ev.Message)
		case domain.RetryPass:
			logger.Named("driver").Info().Int("count", ev.Count).Msg("retrying references with failed backends")
		}
	}

	for {
		select {
		case e := <-events:
			handle(e)
		case <-runDone:
			for {
				select {
				case e := <-events:
					handle(e)
				default:
					if bar != nil {
						_ = bar.Finish()
					}
					return
				}
			}
		}
	}
}

func printResults(results []citation.ValidationResult) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, r := range results {
		label := ""
		switch r.Status {
		case citation.StatusVerified:
			label = green("VERIFIED")
		case citation.StatusAuthorMismatch:
			label = yellow("AUTHOR MISMATCH")
		case citation.StatusNotFound:
			label = red("NOT FOUND")
		case citation.StatusSkipped:
			label = dim("SKIPPED")
		}

		title := r.Title
		if title == "" {
			title = firstLine(r.RawCitation)
		}
		fmt.Printf("[%3d] %-24s %s", r.OriginalNumber, label, title)
		if r.Source != "" {
			fmt.Printf(" %s", dim("("+r.Source+")"))
		}
		if r.RetractionInfo != nil && r.RetractionInfo.IsRetracted {
			fmt.Printf(" %s", red("[RETRACTED]"))
		}
		fmt.Println()

		if r.Status == citation.StatusAuthorMismatch && len(r.FoundAuthors) > 0 {
			fmt.Printf("      found authors: %s\n", strings.Join(r.FoundAuthors, ", "))
		}
	}
}

func printSummary(stats citation.Stats, unprocessed int) {
	fmt.Println()
	fmt.Printf("checked %d references: %d verified, %d not found, %d author mismatch, %d skipped",
		stats.Total, stats.Verified, stats.NotFound, stats.AuthorMismatch, stats.Skipped)
	if stats.Retracted > 0 {
		fmt.Printf(", %d RETRACTED", stats.Retracted)
	}
	if unprocessed > 0 {
		fmt.Printf(" (%d not processed: cancelled)", unprocessed)
	}
	fmt.Println()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 100
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
