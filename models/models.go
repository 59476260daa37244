package models

import (
	"strings"
	"time"
)

/*
 Application layer data models.
*/

// Pin is a user-created image post. ID, OwnerID and CreatedAt never change
// after creation; Title, Description and Image may be edited by the owner.
type Pin struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	// Image holds the reference to externally stored image bytes
	// (e.g. /uploads/<filename>), never the bytes themselves
	Image     string    `json:"image"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	// Username is the owner's display name, denormalized onto feed
	// responses; it is not persisted with the pin
	Username string `json:"username,omitempty"`
}

// Matches reports whether the pin matches the given search text. An empty
// (or all-whitespace) search matches everything; otherwise the search must
// appear as a case-insensitive substring of title or description. This is
// plain substring containment - no word boundaries, no stemming. Both store
// variants must route matching through here so they cannot disagree.
func (p *Pin) Matches(search string) bool {
	s := strings.ToLower(strings.TrimSpace(search))
	if s == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Title), s) {
		return true
	}
	return p.Description != "" && strings.Contains(strings.ToLower(p.Description), s)
}

// PinUpdate carries the editable fields of a pin. Nil means "leave as-is".
// Applied as a whole so concurrent readers see either none or all of an edit.
type PinUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
}

// Apply mutates p with the set fields of u.
func (u *PinUpdate) Apply(p *Pin) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Image != nil {
		p.Image = *u.Image
	}
}

// FeedLess orders two pins for the feed: CreatedAt descending, newest first.
// Equal timestamps fall back to ID descending so any two pins have a strict
// total order and pagination stays stable across calls. Pin IDs are ksuids,
// which sort by creation time, so the tie-break still favors recency.
func FeedLess(a, b *Pin) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// FeedPage is one page of feed results.
type FeedPage struct {
	Items []Pin `json:"pins"`
	// Total counts all pins matching the search across the entire store,
	// not just this page
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// User models individual service user
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Anonymous() bool {
	return u == nil
}

// PinEvent notifies observers that a mutation happened, decoupled from the
// query contract.
type PinEvent struct {
	Type  PinEventType `json:"type"`
	PinID string       `json:"pinId"`
}

type PinEventType string

const (
	PinCreated PinEventType = "created"
	PinUpdated PinEventType = "updated"
	PinDeleted PinEventType = "deleted"
)
