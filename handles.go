package main

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/julienschmidt/httprouter"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"pinfeed.io/pinfeed/common/logging"
	cst "pinfeed.io/pinfeed/constants"
	pe "pinfeed.io/pinfeed/errors"
	md "pinfeed.io/pinfeed/models"
)

type ctxKey int

// ctxKeyUserID carries the authenticated caller's user id
const ctxKeyUserID ctxKey = 0

type authResponse struct {
	Token string  `json:"token"`
	User  md.User `json:"user"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *pinServer) HandleAuthRegister() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			respondErr(w, err)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			respondErr(w, pe.ErrBadInput("invalid registration data").WithCause(err))
			return
		}
		u, rerr := s.US.Register(r.Context(), req.Username, req.Email, req.Password)
		if rerr != nil {
			clog.WithError(rerr).WithField("email", req.Email).Error("error registering user")
			respondErr(w, rerr)
			return
		}
		s.respondWithToken(w, clog, http.StatusCreated, u)
	}
}

func (s *pinServer) HandleAuthLogin() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			respondErr(w, err)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			respondErr(w, pe.ErrBadInput("invalid login data").WithCause(err))
			return
		}
		u, aerr := s.US.Authenticate(r.Context(), req.Email, req.Password)
		if aerr != nil {
			clog.WithError(aerr).WithField("email", req.Email).Info("login rejected")
			respondErr(w, aerr)
			return
		}
		s.respondWithToken(w, clog, http.StatusOK, u)
	}
}

func (s *pinServer) respondWithToken(w http.ResponseWriter, clog *log.Entry, code int, u *md.User) {
	signed, terr := s.Tokens.Issue(u.ID)
	if terr != nil {
		clog.WithError(terr).Error("error issuing token")
		respondErr(w, terr)
		return
	}
	respondJSON(w, code, authResponse{Token: signed, User: *u})
}

// HandleAuthN requires a valid bearer token and passes the caller's user id
// down via the request context.
func (s *pinServer) HandleAuthN(h httprouter.Handle) httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			respondErr(w, pe.ErrUnauthorized("no token"))
			return
		}
		uid, err := s.Tokens.Verify(raw)
		if err != nil {
			clog.WithError(err).Info("rejecting invalid token")
			respondErr(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, uid)
		h(w, r.WithContext(ctx), ps)
	}
}

func callerID(r *http.Request) string {
	uid, _ := r.Context().Value(ctxKeyUserID).(string)
	return uid
}

// HandleFeedListPins serves the main feed and the explore view: one query
// contract, search + 1-based page + page size in, a bounded ordered page
// plus total and hasMore out.
func (s *pinServer) HandleFeedListPins() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()
		// invalid numbers clamp to defaults rather than fail
		page := atoiDefault(q.Get("page"), cst.DefaultPage)
		pageSize := atoiDefault(q.Get("limit"), cst.DefaultPageSize)
		fp, err := s.Feed.Query(r.Context(), q.Get("search"), page, pageSize)
		if err != nil {
			clog.WithError(err).Error("error querying feed")
			respondErr(w, err)
			return
		}
		s.attachUsernames(r.Context(), fp.Items)
		respondJSON(w, http.StatusOK, fp)
	}
}

func (s *pinServer) HandleHistory() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		items, err := s.Feed.History(r.Context())
		if err != nil {
			clog.WithError(err).Error("error querying history")
			respondErr(w, err)
			return
		}
		s.attachUsernames(r.Context(), items)
		respondJSON(w, http.StatusOK, items)
	}
}

func (s *pinServer) HandleUserPins() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ownerID := ps.ByName("userId")
		pins, err := s.PS.FindByOwner(r.Context(), ownerID)
		if err != nil {
			clog.WithError(err).WithField("ownerID", ownerID).Error("error listing user pins")
			respondErr(w, err)
			return
		}
		s.attachUsernames(r.Context(), pins)
		respondJSON(w, http.StatusOK, pins)
	}
}

func (s *pinServer) HandlePinCreate() httprouter.Handle {
	clog := logging.WithFuncName()
	maxReqBodySize := viper.GetInt64(cst.EnvReqBodySizeMax)
	if maxReqBodySize <= 0 {
		maxReqBodySize = 32 << 20
	}
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		r.Body = http.MaxBytesReader(w, r.Body, maxReqBodySize)
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			msg, code := "error parsing form", http.StatusBadRequest
			if strings.Contains(err.Error(), "request body too large") {
				msg, code = "request oversized", http.StatusRequestEntityTooLarge
			}
			clog.WithError(err).Error(msg)
			respondJSON(w, code, map[string]string{"msg": msg})
			return
		}
		title := strings.TrimSpace(s.sanitizer.Sanitize(r.FormValue("title")))
		if title == "" {
			respondErr(w, pe.ErrBadInput("title is required"))
			return
		}
		description := strings.TrimSpace(s.sanitizer.Sanitize(r.FormValue("description")))

		f, fh, err := r.FormFile("image")
		if err != nil {
			respondErr(w, pe.ErrBadInput("image file is required").WithCause(err))
			return
		}
		defer f.Close()

		kid, err := ksuid.NewRandom()
		if err != nil {
			clog.WithError(err).Error("fail to generate pin id")
			respondErr(w, pe.ErrServiceFailure("error creating pin").WithCause(err))
			return
		}
		ref := s.FS.Ref(kid.String() + safeExt(fh.Filename))
		if serr := s.FS.Save(ref, f); serr != nil {
			clog.WithError(serr).Error("error saving image data")
			respondErr(w, serr)
			return
		}
		p := &md.Pin{
			ID:          kid.String(),
			Title:       title,
			Description: description,
			Image:       ref,
			OwnerID:     callerID(r),
			CreatedAt:   time.Now(),
		}
		if ierr := s.PS.Insert(r.Context(), p); ierr != nil {
			clog.WithError(ierr).WithField("pinID", p.ID).Error("error saving pin")
			respondErr(w, ierr)
			return
		}
		s.Notifier.Publish(md.PinEvent{Type: md.PinCreated, PinID: p.ID})
		out := *p
		out.Username = s.username(r.Context(), out.OwnerID)
		respondJSON(w, http.StatusCreated, out)
	}
}

type pinUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

func (s *pinServer) HandlePinUpdate() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pinID := ps.ByName("id")
		plog := clog.WithField("pinID", pinID)
		var req pinUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			respondErr(w, err)
			return
		}
		if req.Title != nil {
			t := strings.TrimSpace(s.sanitizer.Sanitize(*req.Title))
			if t == "" {
				respondErr(w, pe.ErrBadInput("title cannot be empty"))
				return
			}
			req.Title = &t
		}
		if req.Description != nil {
			d := strings.TrimSpace(s.sanitizer.Sanitize(*req.Description))
			req.Description = &d
		}
		if err := s.authorizeOwner(r, pinID); err != nil {
			respondErr(w, err)
			return
		}
		updated, uerr := s.PS.UpdateByID(r.Context(), pinID, md.PinUpdate{
			Title:       req.Title,
			Description: req.Description,
			Image:       req.Image,
		})
		if uerr != nil {
			plog.WithError(uerr).Error("error updating pin")
			respondErr(w, uerr)
			return
		}
		s.Notifier.Publish(md.PinEvent{Type: md.PinUpdated, PinID: pinID})
		out := *updated
		out.Username = s.username(r.Context(), out.OwnerID)
		respondJSON(w, http.StatusOK, out)
	}
}

func (s *pinServer) HandlePinDelete() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		pinID := ps.ByName("id")
		if err := s.authorizeOwner(r, pinID); err != nil {
			respondErr(w, err)
			return
		}
		// hard delete; orphaned image bytes are the janitor's problem
		if err := s.PS.DeleteByID(r.Context(), pinID); err != nil {
			clog.WithError(err).WithField("pinID", pinID).Error("error deleting pin")
			respondErr(w, err)
			return
		}
		s.Notifier.Publish(md.PinEvent{Type: md.PinDeleted, PinID: pinID})
		respondJSON(w, http.StatusOK, map[string]string{"msg": "Deleted"})
	}
}

// authorizeOwner verifies that the caller owns the pin; only owners mutate.
func (s *pinServer) authorizeOwner(r *http.Request, pinID string) *pe.PinErr {
	p, err := s.PS.Get(r.Context(), pinID)
	if err != nil {
		return err
	}
	if p.OwnerID != callerID(r) {
		return pe.ErrUnauthorized("not authorized")
	}
	return nil
}

func (s *pinServer) HandleImageGet() httprouter.Handle {
	clog := logging.WithFuncName()
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		filename := ps.ByName("filename")
		rc, err := s.FS.Get(cst.UploadURLPrefix + filename)
		if err != nil {
			respondErr(w, err)
			return
		}
		defer rc.Close()
		if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		if _, cerr := io.Copy(w, rc); cerr != nil {
			clog.WithError(cerr).WithField("filename", filename).Error("error sending image data")
		}
	}
}

func (s *pinServer) HandleHealth() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"storeMode": s.PS.Mode(),
		})
	}
}

// attachUsernames denormalizes owner display names onto feed items, going
// through an LRU cache before the user store.
func (s *pinServer) attachUsernames(ctx context.Context, pins []md.Pin) {
	for i := range pins {
		pins[i].Username = s.username(ctx, pins[i].OwnerID)
	}
}

func (s *pinServer) username(ctx context.Context, ownerID string) string {
	if ownerID == "" {
		return ""
	}
	if v, err := s.usernames.Get(ownerID); err == nil {
		if name, ok := v.(string); ok {
			return name
		}
	} else if err != gcache.KeyNotFoundError {
		log.WithError(err).WithField("ownerID", ownerID).Error("error reading username cache")
	}
	u, uerr := s.US.GetByID(ctx, ownerID)
	if uerr != nil {
		log.WithError(uerr).WithField("ownerID", ownerID).Debug("owner lookup failed")
		return ""
	}
	if err := s.usernames.SetWithExpire(ownerID, u.Username, 5*time.Minute); err != nil {
		log.WithError(err).WithField("ownerID", ownerID).Error("error caching username")
	}
	return u.Username
}

// -------------- utils --------------

func decodeJSON(r *http.Request, ptr interface{}) *pe.PinErr {
	defer r.Body.Close()
	d := json.NewDecoder(r.Body)
	if err := d.Decode(ptr); err != nil {
		return pe.ErrBadInput("error parsing request body").WithCause(err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("error encoding response body")
	}
}

func respondErr(w http.ResponseWriter, err *pe.PinErr) {
	respondJSON(w, err.StatusCode(), map[string]string{"msg": err.Error()})
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// safeExt keeps only a plausible image file extension from the uploaded
// file name; everything else of the client-supplied name is discarded.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return ext
	}
	return ""
}
