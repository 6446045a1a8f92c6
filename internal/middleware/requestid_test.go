package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveWithID runs RequestID around a handler that records the context id.
func serveWithID(t *testing.T, incoming string) (ctxID string, rec *httptest.ResponseRecorder) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/explore/status", nil)
	if incoming != "" {
		req.Header.Set(RequestIDHeader, incoming)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec
}

func TestRequestID_GeneratesUUIDv7(t *testing.T) {
	t.Parallel()

	id, rec := serveWithID(t, "")
	require.NotEmpty(t, id)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestRequestID_IncomingHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		id    string
		reuse bool
	}{
		{name: "letters digits dash underscore", id: "cli-Run_42", reuse: true},
		{name: "uuid", id: "0195f3c4-9a7e-7b1c-8d2f-1a2b3c4d5e6f", reuse: true},
		{name: "max length", id: strings.Repeat("j", maxRequestIDLen), reuse: true},
		{name: "too long", id: strings.Repeat("j", maxRequestIDLen+1)},
		{name: "newline", id: "job\nlevel=ERROR"},
		{name: "space", id: "job 1"},
		{name: "markup", id: "<b>job</b>"},
		{name: "dot", id: "job.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, rec := serveWithID(t, tt.id)
			assert.Equal(t, id, rec.Header().Get(RequestIDHeader))
			if tt.reuse {
				assert.Equal(t, tt.id, id)
				return
			}
			assert.NotEqual(t, tt.id, id)
			_, err := uuid.Parse(id)
			assert.NoError(t, err)
		})
	}
}

func TestRequestIDFromContext_EmptyWithoutMiddleware(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	assert.Empty(t, RequestIDFromContext(req.Context()))
}
