package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsTrace(t *testing.T) {
	tcs := []struct {
		name     string
		err      *PinErr
		expected string
	}{
		{
			name:     "ErrWithoutCause",
			err:      ErrNotImplemented(),
			expected: "Not implemented",
		},
		{
			name: "ErrWithCauses",
			err: &PinErr{
				msg: "foo",
				cause: &PinErr{
					msg:   "bar",
					cause: &PinErr{msg: "qux"},
				},
			},
			expected: "foo\nCaused by: bar\nCaused by: qux",
		},
	}
	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			actual := c.err.Trace()
			assert.Equal(t, c.expected, actual, "unexpected error trace")
		})
	}
}

func TestErrorsStatusCode(t *testing.T) {
	tcs := []struct {
		err          *PinErr
		expectedCode int
	}{
		{
			err:          ErrServiceFailure("fake"),
			expectedCode: http.StatusInternalServerError,
		},
		{
			err:          ErrNotFound("fake"),
			expectedCode: http.StatusNotFound,
		},
		{
			err:          ErrBadInput("fake"),
			expectedCode: http.StatusBadRequest,
		},
		{
			err:          ErrUnauthorized("fake"),
			expectedCode: http.StatusUnauthorized,
		},
		{
			err:          ErrExisted("fake"),
			expectedCode: http.StatusForbidden,
		},
		{
			err:          ErrStoreUnavailable("fake"),
			expectedCode: http.StatusServiceUnavailable,
		},
	}
	for _, c := range tcs {
		code := c.err.StatusCode()
		assert.Equal(t, c.expectedCode, code, "unexpected status code")
	}
}
