// Package importer orchestrates one import run: every configured
// account is fetched, normalized and upserted with per-account fault
// isolation, so one bank breaking never costs the others their data.
package importer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bankfeed/lib/banks"
	"bankfeed/lib/banks/registry"
	"bankfeed/lib/browser"
	"bankfeed/services/ledger"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/importer")

// Target pairs an account with the browser session that can reach it.
type Target struct {
	Account banks.Account
	Session browser.Session
}

// NewClientFunc builds a connector for a target. Tests swap this out to
// avoid touching real institutions.
type NewClientFunc func(acct banks.Account, sess browser.Session, limits banks.Limits) (registry.Client, error)

type Options struct {
	Limits banks.Limits
	// concurrent fetches allowed per institution; most banks tolerate
	// exactly one session doing one thing at a time
	Concurrency map[banks.Institution]int
	NewClient   NewClientFunc
}

type Service struct {
	ledger    ledger.Service
	limits    banks.Limits
	newClient NewClientFunc

	concurrency map[banks.Institution]int
	semaphores  map[banks.Institution]chan struct{}
	breakers    map[banks.Institution]*gobreaker.CircuitBreaker
}

func NewService(store ledger.Service, opts Options) *Service {
	newClient := opts.NewClient
	if newClient == nil {
		newClient = registry.New
	}
	s := &Service{
		ledger:      store,
		limits:      opts.Limits.WithDefaults(),
		newClient:   newClient,
		concurrency: opts.Concurrency,
		semaphores:  make(map[banks.Institution]chan struct{}),
		breakers:    make(map[banks.Institution]*gobreaker.CircuitBreaker),
	}
	for _, inst := range banks.Institutions() {
		capacity := opts.Concurrency[inst]
		if capacity <= 0 {
			capacity = 1
		}
		s.semaphores[inst] = make(chan struct{}, capacity)
		s.breakers[inst] = banks.NewBreaker(inst)
	}
	return s
}

// Run imports every target over the given range. It always returns a
// complete summary: individual account failures are recorded, never
// propagated. Cancelling ctx marks still-waiting accounts skipped.
func (s *Service) Run(ctx context.Context, targets []Target, r banks.DateRange) RunSummary {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	summary := RunSummary{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Results: make([]AccountResult, len(targets)),
	}
	span.SetAttributes(
		attribute.String("run_id", summary.RunID),
		attribute.Int("targets", len(targets)),
	)

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			summary.Results[i] = s.runOne(ctx, target, r)
		}(i, target)
	}
	wg.Wait()

	summary.Finished = time.Now()
	return summary
}

func (s *Service) runOne(ctx context.Context, target Target, r banks.DateRange) AccountResult {
	ctx, span := tracer.Start(ctx, "runOne")
	defer span.End()

	acct := target.Account
	span.SetAttributes(
		attribute.String("institution", string(acct.Institution)),
		attribute.String("account", acct.Name()),
	)

	started := time.Now()
	result := AccountResult{Account: acct}
	finish := func(outcome Outcome, err error) AccountResult {
		result.Outcome = outcome
		result.Err = err
		result.Duration = time.Since(started)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "account import failed",
				"institution", acct.Institution,
				"account", acct.Name(),
				"outcome", outcome,
				"err", err,
			)
		}
		return result
	}

	// config errors surface before any network traffic
	if err := banks.ValidateAccount(acct); err != nil {
		return finish(OutcomeSkipped, err)
	}

	sem := s.semaphores[acct.Institution]
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return finish(OutcomeSkipped, ctx.Err())
	}

	client, err := s.newClient(acct, target.Session, s.limits)
	if err != nil {
		return finish(OutcomeSkipped, err)
	}

	fetched, err := s.breakers[acct.Institution].Execute(func() (any, error) {
		return s.fetchAll(ctx, client, acct, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return finish(OutcomeSkipped, err)
	}
	if err != nil {
		return finish(classify(err), err)
	}
	batch := fetched.(fetchResult)
	result.Pages = batch.pages
	result.Transactions = len(batch.txns)

	upserted, err := s.ledger.Upsert(ctx, acct.Institution, batch.txns)
	if err != nil {
		return finish(classify(err), err)
	}
	result.Inserted = upserted.Inserted
	result.Updated = upserted.Updated

	s.snapshotBalance(ctx, client, acct)

	slog.InfoContext(ctx, "account imported",
		"institution", acct.Institution,
		"account", acct.Name(),
		"pages", result.Pages,
		"transactions", result.Transactions,
		"inserted", result.Inserted,
		"updated", result.Updated,
	)
	return finish(OutcomeSuccess, nil)
}

type fetchResult struct {
	pages int
	txns  []banks.Transaction
}

// fetchAll walks the connector's pages, normalizing each as it arrives,
// and trims the combined batch to the requested range. Connectors
// without server-side date filtering return whatever their endpoint
// covers; the trim makes the range contract uniform.
func (s *Service) fetchAll(ctx context.Context, client registry.Client, acct banks.Account, r banks.DateRange) (fetchResult, error) {
	var out fetchResult
	err := client.Fetch(ctx, acct, r, func(page banks.Page) error {
		out.pages++
		slog.DebugContext(ctx, "normalizing page",
			"institution", acct.Institution,
			"account", acct.Name(),
			"page", page.Number,
			"bytes", len(page.Body),
		)
		txns, err := client.Normalize(acct, page)
		if err != nil {
			return err
		}
		out.txns = append(out.txns, txns...)
		return nil
	})
	if err != nil {
		return fetchResult{}, err
	}

	from := banks.Midnight(r.From)
	kept := out.txns[:0]
	for _, t := range out.txns {
		if t.PostedDate.Before(from) || t.PostedDate.After(r.To) {
			continue
		}
		kept = append(kept, t)
	}
	out.txns = banks.Dedupe(kept)
	return out, nil
}

// snapshotBalance records the current balance when the connector
// supports it. Failures here never fail the import, the transactions
// are already safe.
func (s *Service) snapshotBalance(ctx context.Context, client registry.Client, acct banks.Account) {
	fetcher, ok := client.(banks.BalanceFetcher)
	if !ok {
		return
	}
	balance, err := fetcher.Balance(ctx, acct)
	if err != nil {
		slog.WarnContext(ctx, "balance snapshot failed",
			"institution", acct.Institution,
			"account", acct.Name(),
			"err", err,
		)
		return
	}
	if err := s.ledger.RecordBalance(ctx, acct.Institution, acct.Name(), balance); err != nil {
		slog.WarnContext(ctx, "balance snapshot failed",
			"institution", acct.Institution,
			"account", acct.Name(),
			"err", err,
		)
	}
}

func classify(err error) Outcome {
	var (
		parseErr   *banks.ParseError
		storageErr *banks.StorageError
	)
	switch {
	case errors.Is(err, banks.ErrSessionExpired):
		return OutcomeSessionExpired
	case errors.As(err, &storageErr):
		return OutcomeStorage
	case errors.As(err, &parseErr):
		return OutcomeParse
	case banks.IsTransient(err):
		return OutcomeTransient
	default:
		return OutcomeTransient
	}
}
