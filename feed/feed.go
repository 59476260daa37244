// Package feed implements the one query contract shared by every pin
// listing: the main feed, the infinite-scroll explore view and the history
// feed all go through Service so pagination, ordering and demo-mode
// behavior cannot drift between call sites.
package feed

import (
	"context"
	"strings"

	"pinfeed.io/pinfeed/common/logging"
	cst "pinfeed.io/pinfeed/constants"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
	st "pinfeed.io/pinfeed/stores"
)

// Service answers paginated, optionally filtered feed queries against
// whichever PinStore variant the process started with. Queries are pure
// reads; no query mutates anything.
type Service struct {
	Pins st.PinStore
}

func New(ps st.PinStore) *Service {
	return &Service{Pins: ps}
}

// Query returns one feed page. search is trimmed; empty means no filter.
// Non-positive page or pageSize clamp to the documented defaults (1 and 12)
// instead of failing - a deliberate leniency policy. Ordering is createdAt
// descending with an ID-descending tie-break. hasMore comes from fetching
// one record beyond the page (peek-ahead) rather than from a count, while
// Total is counted independently across the whole matching set.
func (s *Service) Query(ctx context.Context, search string, page, pageSize int) (*md.FeedPage, *pe.PinErr) {
	clog := logging.WithFuncName()
	search = strings.TrimSpace(search)
	if page < 1 {
		page = cst.DefaultPage
	}
	if pageSize < 1 {
		pageSize = cst.DefaultPageSize
	}
	skip := (page - 1) * pageSize

	items, err := s.Pins.FindMatching(ctx, st.Query{
		Search: search,
		Skip:   skip,
		Limit:  pageSize + 1,
	})
	if err != nil {
		clog.WithError(err).Error("error fetching feed page")
		return nil, err
	}
	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}

	total, err := s.Pins.CountMatching(ctx, search)
	if err != nil {
		clog.WithError(err).Error("error counting feed matches")
		return nil, err
	}
	return &md.FeedPage{Items: items, Total: total, HasMore: hasMore}, nil
}

// History returns the most recent pins, newest first. It is the same query
// contract with a fixed page: search off, page 1, page size HistorySize.
func (s *Service) History(ctx context.Context) ([]md.Pin, *pe.PinErr) {
	page, err := s.Query(ctx, "", 1, cst.HistorySize)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}
