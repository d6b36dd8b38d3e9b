// Package scraper coordinates one scrape run end-to-end: it bounds the
// concurrent postcode sessions, funnels every raw listing through the
// normalizer into the aggregate store, and publishes the progress stream.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gmaps-scraper/models"
	"gmaps-scraper/progress"
	"gmaps-scraper/services"
	"gmaps-scraper/utils"
)

var (
	ErrEmptyQuery  = errors.New("search query is required")
	ErrNoPostcodes = errors.New("at least one postcode is required")
)

// Producer drives one browser session for a single postcode and yields raw
// listings lazily, in discovery order. The sequence is finite and consumed
// exactly once. skipped counts listings whose detail extraction failed; a
// non-nil error marks the whole postcode as failed (whatever was yielded
// before the failure stays merged).
type Producer interface {
	Scrape(ctx context.Context, query, postcode string, yield func(models.RawListing)) (skipped int, err error)
}

// Request describes one run: a query over an ordered set of postcodes,
// optionally seeded from a previously exported dataset.
type Request struct {
	Query     string
	Postcodes []string
	Baseline  []models.RawListing
}

// Orchestrator owns the run lifecycle. One Orchestrator serves one run.
type Orchestrator struct {
	producer    Producer
	store       *services.AggregateStore
	stream      *progress.Stream
	logger      *utils.Logger
	concurrency int
}

// New creates an Orchestrator running at most concurrency sessions at once.
func New(producer Producer, store *services.AggregateStore, stream *progress.Stream, logger *utils.Logger, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		producer:    producer,
		store:       store,
		stream:      stream,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run executes the full scrape and returns the export handoff bundle.
// Input errors abort before any session starts. Per-postcode failures are
// absorbed into that postcode's state; cancellation still produces a
// run-finished event with everything aggregated so far, marked partial.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.ExportBundle, error) {
	postcodes := distinct(req.Postcodes)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if len(postcodes) == 0 {
		return nil, ErrNoPostcodes
	}

	// Baseline seeding completes before any postcode is dispatched and
	// emits no listing-found events: those rows were known, not found.
	if len(req.Baseline) > 0 {
		if err := o.store.Seed(req.Baseline); err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		o.stream.Publish(progress.Event{
			Type: progress.EventMessage,
			Message: fmt.Sprintf("Loaded %d existing listings from uploaded file, duplicates will be skipped",
				o.store.BaselineCount()),
		})
	}

	startedAt := time.Now()
	o.logger.Info("[run] %q over %d postcodes (concurrency %d, baseline %d)",
		req.Query, len(postcodes), o.concurrency, o.store.BaselineCount())

	states := make([]*models.PostcodeRunState, len(postcodes))
	for i, pc := range postcodes {
		states[i] = &models.PostcodeRunState{Postcode: pc, Status: models.StatusPending}
	}

	pool := utils.NewWorkerPool(o.concurrency)
	for _, state := range states {
		st := state
		pool.Submit(func() {
			o.runPostcode(ctx, req.Query, st)
		})
	}
	pool.Wait()

	rows, perPostcode := o.store.Snapshot()

	summary := models.RunSummary{
		Query:         req.Query,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
		TotalUnique:   len(rows),
		TotalNew:      o.store.NewCount(),
		BaselineCount: o.store.BaselineCount(),
		Partial:       ctx.Err() != nil,
	}
	for _, st := range states {
		if st.Status == models.StatusFailed {
			summary.FailedPostcodes++
		}
		summary.SkippedListings += st.Skipped
	}

	o.stream.Publish(progress.Event{Type: progress.EventRunFinished, Summary: &summary})
	o.stream.Close()

	o.logger.Info("[run] finished: %d unique, %d new, %d failed postcodes, %d skipped listings",
		summary.TotalUnique, summary.TotalNew, summary.FailedPostcodes, summary.SkippedListings)

	return &models.ExportBundle{Rows: rows, Postcodes: perPostcode, Summary: summary}, nil
}

// runPostcode drives a single session to a terminal state. One postcode's
// failure never aborts the others.
func (o *Orchestrator) runPostcode(ctx context.Context, query string, state *models.PostcodeRunState) {
	if ctx.Err() != nil {
		state.Status = models.StatusFailed
		state.Reason = "run cancelled before start"
		o.publishState(state)
		return
	}

	state.Status = models.StatusRunning
	o.stream.Publish(progress.Event{Type: progress.EventPostcodeStarted, Postcode: state.Postcode})

	yield := func(raw models.RawListing) {
		raw.Postcode = state.Postcode
		key, attrs := services.Normalize(raw)
		listing, isNew := o.store.Merge(key, attrs, state.Postcode)

		state.Found++
		if isNew {
			state.New++
		}

		// The listing is already durably merged, so observers may act on it.
		o.stream.Publish(progress.Event{
			Type:     progress.EventListingFound,
			Postcode: state.Postcode,
			Listing:  &listing,
			IsNew:    isNew,
		})
	}

	skipped, err := o.producer.Scrape(ctx, query, state.Postcode, yield)
	state.Skipped = skipped

	switch {
	case err != nil:
		state.Status = models.StatusFailed
		state.Reason = err.Error()
		o.logger.Warn("[run] postcode %s failed after %d listings: %v", state.Postcode, state.Found, err)
	default:
		state.Status = models.StatusDone
		o.logger.Info("[run] postcode %s done: %d found, %d new, %d skipped",
			state.Postcode, state.Found, state.New, state.Skipped)
	}

	o.publishState(state)
}

func (o *Orchestrator) publishState(state *models.PostcodeRunState) {
	cp := *state
	o.stream.Publish(progress.Event{
		Type:     progress.EventPostcodeFinished,
		Postcode: state.Postcode,
		State:    &cp,
	})
}

// distinct keeps the first occurrence of each postcode, preserving order.
func distinct(postcodes []string) []string {
	seen := make(map[string]struct{}, len(postcodes))
	out := make([]string, 0, len(postcodes))
	for _, pc := range postcodes {
		if pc == "" {
			continue
		}
		if _, dup := seen[pc]; dup {
			continue
		}
		seen[pc] = struct{}{}
		out = append(out, pc)
	}
	return out
}
