package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModels_PinMatches(t *testing.T) {
	tcs := []struct {
		name     string
		pin      Pin
		search   string
		expected bool
	}{
		{
			name:     "EmptySearchMatchesAll",
			pin:      Pin{Title: "Sunset Beach"},
			search:   "",
			expected: true,
		},
		{
			name:     "WhitespaceSearchMatchesAll",
			pin:      Pin{Title: "Sunset Beach"},
			search:   "   ",
			expected: true,
		},
		{
			name:     "TitleSubstring",
			pin:      Pin{Title: "Sunset Beach"},
			search:   "beach",
			expected: true,
		},
		{
			name:     "DescriptionSubstring",
			pin:      Pin{Title: "Mountain View", Description: "a beach trip"},
			search:   "beach",
			expected: true,
		},
		{
			name:     "CaseInsensitive",
			pin:      Pin{Title: "Sunset Beach"},
			search:   "BEACH",
			expected: true,
		},
		{
			name:     "NoWordBoundarySemantics",
			pin:      Pin{Title: "beachfront property"},
			search:   "beach",
			expected: true,
		},
		{
			name:     "LongerThanTitleAndDescription",
			pin:      Pin{Title: "Sunset Beach"},
			search:   "beachfront",
			expected: false,
		},
		{
			name:     "MissingDescriptionNeverMatches",
			pin:      Pin{Title: "Mountain View"},
			search:   "beach",
			expected: false,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, c.pin.Matches(c.search), "unexpected match result")
		})
	}
}

func TestModels_FeedLess(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tcs := []struct {
		name     string
		a, b     Pin
		expected bool
	}{
		{
			name:     "NewerFirst",
			a:        Pin{ID: "a", CreatedAt: t0.Add(time.Minute)},
			b:        Pin{ID: "b", CreatedAt: t0},
			expected: true,
		},
		{
			name:     "OlderLast",
			a:        Pin{ID: "a", CreatedAt: t0},
			b:        Pin{ID: "b", CreatedAt: t0.Add(time.Minute)},
			expected: false,
		},
		{
			name:     "EqualTimestampBreaksTieOnIDDescending",
			a:        Pin{ID: "b", CreatedAt: t0},
			b:        Pin{ID: "a", CreatedAt: t0},
			expected: true,
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, FeedLess(&c.a, &c.b), "unexpected feed order")
		})
	}
}

func TestModels_PinUpdateApply(t *testing.T) {
	title, desc := "new title", "new description"
	p := Pin{ID: "x", Title: "old", Description: "old desc", Image: "/uploads/1.png"}
	u := PinUpdate{Title: &title, Description: &desc}
	u.Apply(&p)
	assert.Equal(t, title, p.Title)
	assert.Equal(t, desc, p.Description)
	assert.Equal(t, "/uploads/1.png", p.Image, "unset field must stay as-is")
}

func TestModels_UserAnonymous(t *testing.T) {
	tcs := []struct {
		user      *User
		anonymous bool
	}{
		{
			anonymous: true,
		},
		{
			user:      &User{ID: "johndoe"},
			anonymous: false,
		},
	}
	for _, c := range tcs {
		assert.Equal(t, c.anonymous, c.user.Anonymous(), "unexpected user anonymity")
	}
}
