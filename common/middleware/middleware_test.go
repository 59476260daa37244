package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	hr "github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func TestPanicRecover(t *testing.T) {
	wrec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fake", nil)
	prm := hr.Param{Key: "foo", Value: "bar"}
	cnt := 0
	touch := func() { cnt++ }
	h := func(w http.ResponseWriter, r *http.Request, p hr.Params) {
		touch()
		// params are passed through as expected
		assert.Equal(t, req, r, "unexpected request value")
		assert.Equal(t, hr.Params{prm}, p, "unexpected params value")
		panic("boom!")
	}
	wrapped := Chain(h, PanicRecoverer())

	wrapped(wrec, req, hr.Params{prm})
	assert.Equal(t, 1, cnt, "underlying handler not called by middleware")
	assert.Equal(t, http.StatusInternalServerError, wrec.Code, "panic must yield 500")
}

func TestMetricsPreservesResponse(t *testing.T) {
	wrec, req := httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fake", nil)
	h := func(w http.ResponseWriter, r *http.Request, p hr.Params) {
		w.WriteHeader(http.StatusTeapot)
	}
	Chain(h, Metrics("fake"))(wrec, req, nil)
	assert.Equal(t, http.StatusTeapot, wrec.Code)
}
