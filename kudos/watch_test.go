package kudos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// growingFeed returns one more kudos on every poll, newest first.
type growingFeed struct {
	mu    sync.Mutex
	polls int
}

func (f *growingFeed) Do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	feed := make([]Kudos, 0, f.polls+1)
	for i := f.polls + 1; i >= 1; i-- {
		feed = append(feed, Kudos{ID: string(rune('a' + i - 1))})
	}
	out.(*struct {
		Kudos []Kudos `json:"kudos"`
	}).Kudos = feed
	return nil
}

func TestWatchReportsOnlyNewKudos(t *testing.T) {
	c := NewClient(&growingFeed{}, ann, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []Kudos, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, 10*time.Millisecond, func(k []Kudos) { batches <- k })
	}()

	first := <-batches
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].ID, "oldest first")
	assert.Equal(t, "b", first[1].ID)

	second := <-batches
	require.Len(t, second, 1)
	assert.Equal(t, "c", second[0].ID)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}

func TestWatchRequiresLogin(t *testing.T) {
	c := NewClient(&growingFeed{}, fakeSession{}, nil)
	err := c.Watch(context.Background(), time.Millisecond, func([]Kudos) {})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

// rejectingFeed fails every poll; revokedSession reports the session as
// gone once a poll has failed, as HandleUnauthorized would.
type rejectingFeed struct {
	mu     sync.Mutex
	failed bool
}

func (f *rejectingFeed) Do(context.Context, string, map[string]interface{}, interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = true
	return errors.New("graphql: unauthorized")
}

type revokedSession struct {
	feed *rejectingFeed
}

func (s revokedSession) IsLoggedIn() bool {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	return !s.feed.failed
}

func (s revokedSession) User() *peerbonus.User {
	if !s.IsLoggedIn() {
		return nil
	}
	return ann.user
}

func TestWatchStopsWhenSessionEnds(t *testing.T) {
	feed := &rejectingFeed{}
	c := NewClient(feed, revokedSession{feed: feed}, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.Watch(context.Background(), 10*time.Millisecond, func([]Kudos) {
			t.Error("no kudos expected")
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNotLoggedIn)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after logout")
	}
}

func TestUnseen(t *testing.T) {
	seen := map[string]struct{}{"a": {}}
	fresh := unseen([]Kudos{{ID: "c"}, {ID: "b"}, {ID: "a"}}, seen)
	require.Len(t, fresh, 2)
	assert.Equal(t, "b", fresh[0].ID)
	assert.Equal(t, "c", fresh[1].ID)
	assert.Len(t, seen, 3)
}

func TestUnseenForgetsKudosOutsideWindow(t *testing.T) {
	seen := map[string]struct{}{}
	unseen([]Kudos{{ID: "b"}, {ID: "a"}}, seen)

	fresh := unseen([]Kudos{{ID: "d"}, {ID: "c"}, {ID: "b"}}, seen)
	require.Len(t, fresh, 2)
	assert.Equal(t, "c", fresh[0].ID)
	assert.Equal(t, "d", fresh[1].ID)
	assert.NotContains(t, seen, "a", "dropped out of the feed window")
	assert.Len(t, seen, 3)

	for i := 0; i < 100; i++ {
		unseen([]Kudos{{ID: string(rune('e' + i))}}, seen)
	}
	assert.Len(t, seen, 1, "seen is bounded by the feed window")
}
