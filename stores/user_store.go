package stores

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-kivik/kivik/v3"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
)

const bcryptCost int = 8

// UserStore vends operations to manage users and credentials.
type UserStore interface {
	// Register creates the user; Existed when the email is already taken
	Register(ctx context.Context, username, email, password string) (*md.User, *pe.PinErr)
	// Authenticate verifies email/password; Unauthorized on mismatch
	Authenticate(ctx context.Context, email, password string) (*md.User, *pe.PinErr)
	GetByID(ctx context.Context, id string) (*md.User, *pe.PinErr)
	Close() *pe.PinErr
}

func newUser(username, email, password string) (*md.User, *pe.PinErr) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		log.WithError(err).Error("error creating user password hash")
		return nil, pe.ErrServiceFailure("error processing user password").WithCause(err)
	}
	kid, err := ksuid.NewRandom()
	if err != nil {
		log.WithError(err).Error("error generating user id")
		return nil, pe.ErrServiceFailure("error generating user id").WithCause(err)
	}
	return &md.User{
		ID:        kid.String(),
		Username:  username,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Hash:      string(hash),
		CreatedAt: time.Now(),
	}, nil
}

func checkPassword(u *md.User, password string) *pe.PinErr {
	if err := bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)); err != nil {
		return pe.ErrUnauthorized("invalid credentials").WithCause(err)
	}
	return nil
}

// CouchUserStore is a UserStore backed by a CouchDB collection.
type CouchUserStore struct {
	client *kivik.Client
	db     *kivik.DB
}

type couchUser struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d *couchUser) toModel() md.User {
	return md.User{
		ID:        d.ID,
		Username:  d.Username,
		Email:     d.Email,
		Hash:      d.Hash,
		CreatedAt: d.CreatedAt,
	}
}

func NewCouchUserStore(ctx context.Context, client *kivik.Client, dbName string) (*CouchUserStore, *pe.PinErr) {
	if err := ensureDB(ctx, client, dbName); err != nil {
		return nil, err
	}
	db := client.DB(ctx, dbName)
	idx := map[string]interface{}{
		"fields": []string{"email"},
	}
	if err := db.CreateIndex(ctx, "user-email", "user-email-idx", idx); err != nil {
		return nil, toStoreErr(err, "error creating user email index")
	}
	return &CouchUserStore{client: client, db: db}, nil
}

func (s *CouchUserStore) Register(ctx context.Context, username, email, password string) (*md.User, *pe.PinErr) {
	clog := log.WithField("email", email)
	if _, err := s.findByEmail(ctx, email); err == nil {
		return nil, pe.ErrExisted("user already exists")
	} else if err.Code != pe.ErrCodeNotFound {
		return nil, err
	}
	u, err := newUser(username, email, password)
	if err != nil {
		return nil, err
	}
	doc := &couchUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Hash:      u.Hash,
		CreatedAt: u.CreatedAt,
	}
	if _, perr := s.db.Put(ctx, u.ID, doc); perr != nil {
		clog.WithError(perr).Error("error saving user document")
		return nil, toStoreErr(perr, "error registering user")
	}
	return u, nil
}

func (s *CouchUserStore) Authenticate(ctx context.Context, email, password string) (*md.User, *pe.PinErr) {
	u, err := s.findByEmail(ctx, email)
	if err != nil {
		if err.Code == pe.ErrCodeNotFound {
			// same failure as a wrong password; don't leak which emails exist
			return nil, pe.ErrUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := checkPassword(u, password); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *CouchUserStore) findByEmail(ctx context.Context, email string) (*md.User, *pe.PinErr) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"email": strings.ToLower(strings.TrimSpace(email)),
		},
		"limit": 1,
	}
	rows, err := s.db.Find(ctx, query)
	if err != nil {
		return nil, toStoreErr(err, "error looking up user")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, toStoreErr(err, "error looking up user")
		}
		return nil, pe.ErrNotFound("user not found")
	}
	var doc couchUser
	if err := rows.ScanDoc(&doc); err != nil {
		return nil, toStoreErr(err, "error unmarshalling user document")
	}
	u := doc.toModel()
	return &u, nil
}

func (s *CouchUserStore) GetByID(ctx context.Context, id string) (*md.User, *pe.PinErr) {
	row := s.db.Get(ctx, id)
	var doc couchUser
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.StatusCode(err) == 404 {
			return nil, pe.ErrNotFound("user not found").WithCause(err)
		}
		return nil, toStoreErr(err, "error getting user document")
	}
	u := doc.toModel()
	return &u, nil
}

func (s *CouchUserStore) Close() *pe.PinErr {
	if err := s.client.Close(context.Background()); err != nil {
		return pe.ErrServiceFailure("failed closing CouchDB client").WithCause(err)
	}
	return nil
}

// MemoryUserStore is the demo-mode UserStore. Accounts vanish on restart,
// like everything else in demo mode.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byEmail map[string]md.User
	byID    map[string]md.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byEmail: map[string]md.User{},
		byID:    map[string]md.User{},
	}
}

func (s *MemoryUserStore) Register(_ context.Context, username, email, password string) (*md.User, *pe.PinErr) {
	u, err := newUser(username, email, password)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return nil, pe.ErrExisted("user already exists")
	}
	s.byEmail[u.Email] = *u
	s.byID[u.ID] = *u
	return u, nil
}

func (s *MemoryUserStore) Authenticate(_ context.Context, email, password string) (*md.User, *pe.PinErr) {
	s.mu.RLock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()
	if !ok {
		return nil, pe.ErrUnauthorized("invalid credentials")
	}
	if err := checkPassword(&u, password); err != nil {
		return nil, err
	}
	out := u
	return &out, nil
}

func (s *MemoryUserStore) GetByID(_ context.Context, id string) (*md.User, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, pe.ErrNotFound("user not found")
	}
	out := u
	return &out, nil
}

func (s *MemoryUserStore) Close() *pe.PinErr {
	return nil
}
