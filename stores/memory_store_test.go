package stores

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	md "pinfeed.io/pinfeed/models"
)

func seedPins(t *testing.T, s *MemoryPinStore, n int) []md.Pin {
	t.Helper()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pins := make([]md.Pin, 0, n)
	for i := 1; i <= n; i++ {
		p := md.Pin{
			ID:        fmt.Sprintf("id-%03d", i),
			Title:     fmt.Sprintf("Pin %d", i),
			OwnerID:   "owner-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.Nil(t, s.Insert(context.Background(), &p))
		pins = append(pins, p)
	}
	return pins
}

func TestMemoryStore_FindMatchingOrder(t *testing.T) {
	s := NewMemoryPinStore()
	seedPins(t, s, 5)

	got, err := s.FindMatching(context.Background(), Query{Limit: 10})
	require.Nil(t, err)
	require.Len(t, got, 5)
	for i, title := range []string{"Pin 5", "Pin 4", "Pin 3", "Pin 2", "Pin 1"} {
		assert.Equal(t, title, got[i].Title, "feed must be newest first")
	}
}

func TestMemoryStore_PeekAheadBoundaries(t *testing.T) {
	s := NewMemoryPinStore()
	seedPins(t, s, 13)
	ctx := context.Background()

	tcs := []struct {
		name     string
		q        Query
		expected int
	}{
		{name: "FirstPagePlusPeek", q: Query{Skip: 0, Limit: 13}, expected: 13},
		{name: "SecondPagePlusPeek", q: Query{Skip: 12, Limit: 13}, expected: 1},
		{name: "SkipPastEnd", q: Query{Skip: 24, Limit: 13}, expected: 0},
		{name: "SkipAtExactEnd", q: Query{Skip: 13, Limit: 13}, expected: 0},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.FindMatching(ctx, c.q)
			require.Nil(t, err)
			assert.Len(t, got, c.expected)
		})
	}
}

func TestMemoryStore_SearchFiltering(t *testing.T) {
	s := NewMemoryPinStore()
	ctx := context.Background()
	t0 := time.Now()
	require.Nil(t, s.Insert(ctx, &md.Pin{ID: "a", Title: "Sunset Beach", CreatedAt: t0}))
	require.Nil(t, s.Insert(ctx, &md.Pin{ID: "b", Title: "Mountain View", Description: "a beach trip", CreatedAt: t0.Add(time.Second)}))

	tcs := []struct {
		search   string
		expected int
	}{
		{search: "beach", expected: 2},
		{search: "BEACH", expected: 2},
		{search: "beachfront", expected: 0},
		{search: "", expected: 2},
		{search: "  beach  ", expected: 2},
	}
	for _, c := range tcs {
		got, err := s.FindMatching(ctx, Query{Search: c.search, Limit: 10})
		require.Nil(t, err)
		assert.Len(t, got, c.expected, "search %q", c.search)
		cnt, err := s.CountMatching(ctx, c.search)
		require.Nil(t, err)
		assert.Equal(t, c.expected, cnt, "count for search %q", c.search)
	}
}

func TestMemoryStore_TieBreakStableAcrossCalls(t *testing.T) {
	s := NewMemoryPinStore()
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// identical timestamps; order must come from ID descending
	require.Nil(t, s.Insert(ctx, &md.Pin{ID: "aaa", Title: "first", CreatedAt: ts}))
	require.Nil(t, s.Insert(ctx, &md.Pin{ID: "zzz", Title: "second", CreatedAt: ts}))

	first, err := s.FindMatching(ctx, Query{Limit: 10})
	require.Nil(t, err)
	second, err := s.FindMatching(ctx, Query{Limit: 10})
	require.Nil(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "zzz", first[0].ID)
	assert.Equal(t, first, second, "repeat query must return identical order")
}

func TestMemoryStore_UpdateIsAtomicPerPin(t *testing.T) {
	s := NewMemoryPinStore()
	ctx := context.Background()
	require.Nil(t, s.Insert(ctx, &md.Pin{ID: "a", Title: "old", Description: "old desc", CreatedAt: time.Now()}))

	title, desc := "new", "new desc"
	updated, err := s.UpdateByID(ctx, "a", md.PinUpdate{Title: &title, Description: &desc})
	require.Nil(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "new desc", updated.Description)

	got, err := s.Get(ctx, "a")
	require.Nil(t, err)
	assert.Equal(t, *updated, *got)

	_, err = s.UpdateByID(ctx, "nope", md.PinUpdate{Title: &title})
	require.NotNil(t, err)
	assert.Equal(t, 404, err.StatusCode())
}

func TestMemoryStore_DeleteVisibleToSubsequentQueries(t *testing.T) {
	s := NewMemoryPinStore()
	seedPins(t, s, 3)
	ctx := context.Background()

	require.Nil(t, s.DeleteByID(ctx, "id-002"))
	cnt, err := s.CountMatching(ctx, "")
	require.Nil(t, err)
	assert.Equal(t, 2, cnt, "delete must decrement the count by exactly one")
	got, ferr := s.FindMatching(ctx, Query{Limit: 10})
	require.Nil(t, ferr)
	for _, p := range got {
		assert.NotEqual(t, "id-002", p.ID, "deleted pin must never come back")
	}

	derr := s.DeleteByID(ctx, "id-002")
	require.NotNil(t, derr)
	assert.Equal(t, 404, derr.StatusCode())
}
