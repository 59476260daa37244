package stores

import (
	"context"
	goerrors "errors"
	"net/url"
	"regexp"
	"time"

	"github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	"pinfeed.io/pinfeed/common/logging"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
)

// Query narrows and pages a pin lookup. Search is matched as a
// case-insensitive substring of title or description; empty means no filter.
type Query struct {
	Search string
	Skip   int
	Limit  int
}

// PinStore vends the interface to interact with pin data. Exactly one
// implementation is picked at process start - CouchPinStore when the durable
// backend answers, MemoryPinStore otherwise - and the choice never changes
// for the process lifetime. Both implementations must satisfy the identical
// filter/order/paging contract; the match predicate and comparator live in
// the models package so the two cannot drift.
type PinStore interface {
	FindMatching(ctx context.Context, q Query) ([]md.Pin, *pe.PinErr)
	// CountMatching counts every pin matching search across the whole
	// store, independent of paging
	CountMatching(ctx context.Context, search string) (int, *pe.PinErr)
	FindByOwner(ctx context.Context, ownerID string) ([]md.Pin, *pe.PinErr)
	Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr)
	Insert(ctx context.Context, p *md.Pin) *pe.PinErr
	// UpdateByID applies the update atomically per pin: readers observe
	// either none or all of it
	UpdateByID(ctx context.Context, pinID string, u md.PinUpdate) (*md.Pin, *pe.PinErr)
	DeleteByID(ctx context.Context, pinID string) *pe.PinErr
	// Mode reports which store variant backs this process, for diagnostics
	Mode() string
	Close() *pe.PinErr
}

const (
	ModeDurable = "durable"
	ModeDemo    = "demo"

	// countBatchSize bounds each id-only page fetched while counting.
	// Mango has no count operator, so CountMatching pages through ids.
	countBatchSize = 500
)

// CouchPinStore is a PinStore implementation backed by a CouchDB collection
// accessed through kivik.
type CouchPinStore struct {
	db *kivik.DB
}

// couchPin is the document shape pins take in CouchDB. The document id is
// the pin id.
type couchPin struct {
	ID          string    `json:"_id"`
	Rev         string    `json:"_rev,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (d *couchPin) toModel() md.Pin {
	return md.Pin{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Image:       d.Image,
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt,
	}
}

func fromModel(p *md.Pin) *couchPin {
	return &couchPin{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Image:       p.Image,
		OwnerID:     p.OwnerID,
		CreatedAt:   p.CreatedAt,
	}
}

// NewCouchPinStore binds to the given database and ensures the feed-order
// index exists.
func NewCouchPinStore(ctx context.Context, client *kivik.Client, dbName string) (*CouchPinStore, *pe.PinErr) {
	if err := ensureDB(ctx, client, dbName); err != nil {
		return nil, err
	}
	db := client.DB(ctx, dbName)
	// feed queries sort on (createdAt desc, _id desc); Mango requires the
	// sort fields to be indexed
	idx := map[string]interface{}{
		"fields": []string{"createdAt", "_id"},
	}
	if err := db.CreateIndex(ctx, "feed-order", "feed-order-idx", idx); err != nil {
		return nil, toStoreErr(err, "error creating feed index")
	}
	return &CouchPinStore{db: db}, nil
}

// feedSelector builds the Mango selector matching the shared predicate
// md.Pin.Matches. The `createdAt $gt null` clause keeps the sort index
// usable even with no search filter. The regex is the QuoteMeta'd search
// with a case-insensitive flag, i.e. plain substring containment - the same
// semantics the in-memory path gets from strings.Contains over lowercased
// text (the two agree; search text is matched literally, not as a pattern).
func feedSelector(search string) map[string]interface{} {
	sel := map[string]interface{}{
		"createdAt": map[string]interface{}{"$gt": nil},
	}
	if search == "" {
		return sel
	}
	pat := "(?i)" + regexp.QuoteMeta(search)
	return map[string]interface{}{
		"$and": []map[string]interface{}{
			sel,
			{
				"$or": []map[string]interface{}{
					{"title": map[string]interface{}{"$regex": pat}},
					{"description": map[string]interface{}{"$regex": pat}},
				},
			},
		},
	}
}

var feedSort = []map[string]string{
	{"createdAt": "desc"},
	{"_id": "desc"},
}

func (s *CouchPinStore) FindMatching(ctx context.Context, q Query) ([]md.Pin, *pe.PinErr) {
	query := map[string]interface{}{
		"selector": feedSelector(q.Search),
		"sort":     feedSort,
		"skip":     q.Skip,
		"limit":    q.Limit,
	}
	return s.find(ctx, query)
}

func (s *CouchPinStore) CountMatching(ctx context.Context, search string) (int, *pe.PinErr) {
	total, skip := 0, 0
	for {
		query := map[string]interface{}{
			"selector": feedSelector(search),
			"fields":   []string{"_id"},
			"skip":     skip,
			"limit":    countBatchSize,
		}
		rows, err := s.db.Find(ctx, query)
		if err != nil {
			return 0, toStoreErr(err, "error counting pins")
		}
		n := 0
		for rows.Next() {
			n++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return 0, toStoreErr(err, "error counting pins")
		}
		rows.Close()
		total += n
		if n < countBatchSize {
			return total, nil
		}
		skip += countBatchSize
	}
}

func (s *CouchPinStore) FindByOwner(ctx context.Context, ownerID string) ([]md.Pin, *pe.PinErr) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"$and": []map[string]interface{}{
				{"createdAt": map[string]interface{}{"$gt": nil}},
				{"ownerId": ownerID},
			},
		},
		"sort": feedSort,
	}
	return s.find(ctx, query)
}

func (s *CouchPinStore) find(ctx context.Context, query map[string]interface{}) ([]md.Pin, *pe.PinErr) {
	rows, err := s.db.Find(ctx, query)
	if err != nil {
		return nil, toStoreErr(err, "error querying pins")
	}
	defer rows.Close()
	pins := []md.Pin{}
	for rows.Next() {
		var doc couchPin
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, toStoreErr(err, "error unmarshalling pin document")
		}
		pins = append(pins, doc.toModel())
	}
	if err := rows.Err(); err != nil {
		return nil, toStoreErr(err, "error iterating pin documents")
	}
	return pins, nil
}

func (s *CouchPinStore) Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr) {
	doc, err := s.get(ctx, pinID)
	if err != nil {
		return nil, err
	}
	p := doc.toModel()
	return &p, nil
}

func (s *CouchPinStore) get(ctx context.Context, pinID string) (*couchPin, *pe.PinErr) {
	row := s.db.Get(ctx, pinID)
	var doc couchPin
	if err := row.ScanDoc(&doc); err != nil {
		return nil, toStoreErr(err, "error getting pin document")
	}
	return &doc, nil
}

func (s *CouchPinStore) Insert(ctx context.Context, p *md.Pin) *pe.PinErr {
	clog := log.WithField("pinID", p.ID)
	if _, err := s.db.Put(ctx, p.ID, fromModel(p)); err != nil {
		clog.WithError(err).Error("error saving pin document")
		return toStoreErr(err, "error saving pin")
	}
	return nil
}

func (s *CouchPinStore) UpdateByID(ctx context.Context, pinID string, u md.PinUpdate) (*md.Pin, *pe.PinErr) {
	clog := logging.WithFuncName().WithField("pinID", pinID)
	doc, gerr := s.get(ctx, pinID)
	if gerr != nil {
		return nil, gerr
	}
	p := doc.toModel()
	u.Apply(&p)
	next := fromModel(&p)
	next.Rev = doc.Rev
	// CouchDB's per-document MVCC makes the write atomic; a stale rev fails
	// the whole update instead of landing half of it
	if _, err := s.db.Put(ctx, pinID, next); err != nil {
		clog.WithError(err).Error("error updating pin document")
		return nil, toStoreErr(err, "error updating pin")
	}
	return &p, nil
}

func (s *CouchPinStore) DeleteByID(ctx context.Context, pinID string) *pe.PinErr {
	clog := logging.WithFuncName().WithField("pinID", pinID)
	doc, gerr := s.get(ctx, pinID)
	if gerr != nil {
		return gerr
	}
	if _, err := s.db.Delete(ctx, pinID, doc.Rev); err != nil {
		clog.WithError(err).Error("error deleting pin document")
		return toStoreErr(err, "error deleting pin")
	}
	return nil
}

func (s *CouchPinStore) Mode() string {
	return ModeDurable
}

func (s *CouchPinStore) Close() *pe.PinErr {
	// the kivik client is shared with the user store; closing happens there
	return nil
}

// ensureDB creates the database when it does not exist yet.
func ensureDB(ctx context.Context, client *kivik.Client, dbName string) *pe.PinErr {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return toStoreErr(err, "error checking database existence")
	}
	if exists {
		return nil
	}
	if err := client.CreateDB(ctx, dbName); err != nil {
		// lost a create race with another process
		if kivik.StatusCode(err) == 412 {
			return nil
		}
		return toStoreErr(err, "error creating database")
	}
	return nil
}

// toStoreErr translates kivik/transport failures into PinErr kinds. A dead
// or unreachable backend maps to StoreUnavailable so callers fail fast
// rather than hang or silently fall back.
func toStoreErr(err error, msg string) *pe.PinErr {
	switch kivik.StatusCode(err) {
	case 404:
		return pe.ErrNotFound("pin not found").WithCause(err)
	case 409, 412:
		return pe.ErrServiceFailure(msg).WithCause(err)
	}
	var uerr *url.Error
	if goerrors.As(err, &uerr) {
		return pe.ErrStoreUnavailable(msg).WithCause(err)
	}
	if kivik.StatusCode(err) >= 500 {
		return pe.ErrStoreUnavailable(msg).WithCause(err)
	}
	return pe.ErrServiceFailure(msg).WithCause(err)
}
