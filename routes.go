package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mw "pinfeed.io/pinfeed/common/middleware"
)

// set up routes
func (s *pinServer) SetupMux() {
	r := httprouter.New()
	wrap := func(name string, h httprouter.Handle) httprouter.Handle {
		return mw.Chain(h, mw.Metrics(name), mw.PanicRecoverer())
	}
	// auth
	r.POST("/api/register", wrap("register", s.HandleAuthRegister()))
	r.POST("/api/login", wrap("login", s.HandleAuthLogin()))
	// pins
	r.GET("/api/pins", wrap("feed", s.HandleFeedListPins()))
	r.POST("/api/pins", wrap("pin-create", s.HandleAuthN(s.HandlePinCreate())))
	r.GET("/api/pins/user/:userId", wrap("user-pins", s.HandleUserPins()))
	r.PUT("/api/pins/:id", wrap("pin-update", s.HandleAuthN(s.HandlePinUpdate())))
	r.DELETE("/api/pins/:id", wrap("pin-delete", s.HandleAuthN(s.HandlePinDelete())))
	r.GET("/api/history", wrap("history", s.HandleHistory()))
	// uploaded image bytes
	r.GET("/uploads/:filename", wrap("image", s.HandleImageGet()))
	// ops
	r.GET("/api/health", s.HandleHealth())
	r.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	s.Router = r
}
