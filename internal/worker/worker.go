// Package worker implements the worker client and its lease renewal loop:
// poll open cards, claim one, keep its lease alive on a background
// goroutine while the work runs, then publish the outcome. No Python
// original exists for this component; it is designed directly from
// spec.md 4.H, using context.Context on every blocking call per the
// teacher's convention for network-bound operations.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Card is the worker's view of a coordinator card.
type Card struct {
	ID    string
	State string
}

// CardClient is the coordinator surface a worker depends on. The HTTP
// implementation lives in internal/worker/httpclient.go; tests may supply
// an in-process fake wrapping internal/coordinator directly.
type CardClient interface {
	ListOpen(ctx context.Context) ([]Card, error)
	Claim(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error
	Renew(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error
	Complete(ctx context.Context, id, nodeID string, result any) error
}

// ErrNoOpenCards is returned by RunOnce when polling found nothing to claim.
var ErrNoOpenCards = errors.New("no open cards")

// Config tunes a Worker's polling and lease cadence. RenewInterval defaults
// to LeaseDuration/3 when zero, matching the coordinator's published
// default.
type Config struct {
	NodeID        string
	LeaseDuration time.Duration
	RenewInterval time.Duration
	PollInterval  time.Duration
	JoinTimeout   time.Duration
	SleepFn       func(context.Context, time.Duration)
}

// Worker polls, claims, and renews cards against a CardClient.
type Worker struct {
	client CardClient
	cfg    Config
}

// New builds a Worker. A zero SleepFn defaults to a context-aware
// time.Sleep equivalent.
func New(client CardClient, cfg Config) *Worker {
	if cfg.RenewInterval == 0 {
		cfg.RenewInterval = cfg.LeaseDuration / 3
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = cfg.RenewInterval
	}
	if cfg.SleepFn == nil {
		cfg.SleepFn = contextSleep
	}
	return &Worker{client: client, cfg: cfg}
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Work is the unit of task execution a worker runs while holding a lease.
// It receives the claimed card's ID; implementations decide how long to
// run.
type Work func(ctx context.Context, cardID string) (result any, err error)

// RunOnce executes one poll-claim-renew-work-complete cycle. It returns
// ErrNoOpenCards if polling found nothing to claim, after sleeping
// PollInterval.
func (w *Worker) RunOnce(ctx context.Context, do Work) error {
	cards, err := w.client.ListOpen(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		w.cfg.SleepFn(ctx, w.cfg.PollInterval)
		return ErrNoOpenCards
	}

	var claimedID string
	for _, c := range cards {
		if err := w.client.Claim(ctx, c.ID, w.cfg.NodeID, w.cfg.LeaseDuration); err == nil {
			claimedID = c.ID
			break
		}
	}
	if claimedID == "" {
		return ErrNoOpenCards
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go w.renewLoop(ctx, claimedID, stop, &wg)

	result, workErr := do(ctx, claimedID)

	close(stop)
	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(w.cfg.JoinTimeout):
	}

	if workErr != nil {
		return w.client.Complete(ctx, claimedID, w.cfg.NodeID, map[string]any{"error": workErr.Error()})
	}
	return w.client.Complete(ctx, claimedID, w.cfg.NodeID, result)
}

// renewLoop issues renew calls at RenewInterval until stop fires or a
// renewal fails, at which point the lease is considered lost and the loop
// terminates without attempting to complete the card itself.
func (w *Worker) renewLoop(ctx context.Context, cardID string, stop <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(w.cfg.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.Renew(ctx, cardID, w.cfg.NodeID, w.cfg.LeaseDuration); err != nil {
				return
			}
		}
	}
}
