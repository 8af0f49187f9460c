package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu        sync.Mutex
	open      []Card
	claimErr  error
	claimed   []string
	renews    int
	completed []any
}

func (f *fakeClient) ListOpen(ctx context.Context) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open, nil
}

func (f *fakeClient) Claim(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimed = append(f.claimed, id)
	return nil
}

func (f *fakeClient) Renew(ctx context.Context, id, nodeID string, leaseDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renews++
	return nil
}

func (f *fakeClient) Complete(ctx context.Context, id, nodeID string, result any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, result)
	return nil
}

func TestRunOnce_NoOpenCardsReturnsSentinelError(t *testing.T) {
	client := &fakeClient{}
	w := New(client, Config{NodeID: "node-a", LeaseDuration: time.Second, PollInterval: time.Millisecond})

	err := w.RunOnce(context.Background(), func(ctx context.Context, cardID string) (any, error) {
		t.Fatal("work should not run when there are no open cards")
		return nil, nil
	})

	assert.ErrorIs(t, err, ErrNoOpenCards)
}

func TestRunOnce_ClaimsAndCompletesSuccessfulWork(t *testing.T) {
	client := &fakeClient{open: []Card{{ID: "c1", State: "OPEN"}}}
	w := New(client, Config{NodeID: "node-a", LeaseDuration: 30 * time.Millisecond})

	err := w.RunOnce(context.Background(), func(ctx context.Context, cardID string) (any, error) {
		return map[string]any{"ok": true}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, client.claimed)
	require.Len(t, client.completed, 1)
}

func TestRunOnce_CompletesWithErrorDetailsWhenWorkFails(t *testing.T) {
	client := &fakeClient{open: []Card{{ID: "c1", State: "OPEN"}}}
	w := New(client, Config{NodeID: "node-a", LeaseDuration: 30 * time.Millisecond})

	workErr := errors.New("boom")
	err := w.RunOnce(context.Background(), func(ctx context.Context, cardID string) (any, error) {
		return nil, workErr
	})

	require.NoError(t, err)
	require.Len(t, client.completed, 1)
	details, ok := client.completed[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", details["error"])
}

func TestRunOnce_RenewsLeaseWhileWorkRuns(t *testing.T) {
	client := &fakeClient{open: []Card{{ID: "c1", State: "OPEN"}}}
	w := New(client, Config{NodeID: "node-a", LeaseDuration: 30 * time.Millisecond, RenewInterval: 5 * time.Millisecond})

	err := w.RunOnce(context.Background(), func(ctx context.Context, cardID string) (any, error) {
		time.Sleep(25 * time.Millisecond)
		return "done", nil
	})

	require.NoError(t, err)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Greater(t, client.renews, 0)
}

func TestNew_DefaultsRenewIntervalToLeaseDurationOverThree(t *testing.T) {
	w := New(&fakeClient{}, Config{LeaseDuration: 9 * time.Second})
	assert.Equal(t, 3*time.Second, w.cfg.RenewInterval)
}
