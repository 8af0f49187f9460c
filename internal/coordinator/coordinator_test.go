package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim_OpenCardSucceeds(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen}})

	c, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, c.State)
	assert.Equal(t, "node-a", c.ClaimedBy)
	assert.Equal(t, 1, c.Attempts)
}

func TestClaim_AlreadyClaimedByOtherNodeFails(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen}})

	_, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)

	_, err = s.Claim("c1", "node-b", time.Minute)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaim_HedgedExecutionAllowsSecondClaimant(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen, HedgedExecution: true}})

	_, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)

	c, err := s.Claim("c1", "node-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "node-b", c.ClaimedBy)
}

func TestClaim_ExpiredLeaseIsReclaimable(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	s := NewWithClock(clock)
	s.Reset([]Card{{ID: "c1", State: StateOpen}})

	_, err := s.Claim("c1", "node-a", time.Second)
	require.NoError(t, err)

	current = current.Add(2 * time.Second)
	c, err := s.Claim("c1", "node-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "node-b", c.ClaimedBy)
}

func TestListOpen_TreatsExpiredNonHedgedLeaseAsOpen(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	s := NewWithClock(clock)
	s.Reset([]Card{{ID: "c1", State: StateOpen}})

	_, err := s.Claim("c1", "node-a", time.Second)
	require.NoError(t, err)
	assert.Empty(t, s.ListOpen())

	current = current.Add(2 * time.Second)
	open := s.ListOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "c1", open[0].ID)
}

func TestRenew_RequiresHoldingNode(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen}})
	_, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)

	_, err = s.Renew("c1", "node-b", time.Minute)
	assert.ErrorIs(t, err, ErrNotClaimedByYou)

	c, err := s.Renew("c1", "node-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateClaimed, c.State)
}

func TestTerminate_IsIdempotentAndFirstWriterWins(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen}})
	_, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)

	c1, changed1, err := s.Complete("c1", "node-a", "result-a")
	require.NoError(t, err)
	assert.True(t, changed1)
	assert.Equal(t, StateDone, c1.State)

	c2, changed2, err := s.Fail("c1", "node-a", "result-b")
	require.NoError(t, err)
	assert.False(t, changed2)
	assert.Equal(t, StateDone, c2.State)
	assert.Equal(t, "result-a", c2.Result)
}

func TestGet_UnknownCardReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingMirror struct {
	mu    sync.Mutex
	cards []Card
	done  chan struct{}
}

func newRecordingMirror(expected int) *recordingMirror {
	return &recordingMirror{done: make(chan struct{}, expected)}
}

func (m *recordingMirror) MirrorCard(ctx context.Context, c Card) error {
	m.mu.Lock()
	m.cards = append(m.cards, c)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func TestSetMirror_ReceivesMutationsAsynchronously(t *testing.T) {
	s := New()
	s.Reset([]Card{{ID: "c1", State: StateOpen}})
	mirror := newRecordingMirror(1)
	s.SetMirror(mirror)

	_, err := s.Claim("c1", "node-a", time.Minute)
	require.NoError(t, err)

	select {
	case <-mirror.done:
	case <-time.After(time.Second):
		t.Fatal("mirror was not called within timeout")
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	require.Len(t, mirror.cards, 1)
	assert.Equal(t, "c1", mirror.cards[0].ID)
}
