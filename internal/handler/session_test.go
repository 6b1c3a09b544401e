package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/collab-playground/internal/handler"
	"github.com/sakif/collab-playground/internal/relay"
	"github.com/sakif/collab-playground/internal/session"
)

type MockSessions struct {
	Sessions map[string]session.Snapshot
	Err      error
}

func (m *MockSessions) Snapshot(_ context.Context, id string) (session.Snapshot, bool, error) {
	if m.Err != nil {
		return session.Snapshot{}, false, m.Err
	}
	s, ok := m.Sessions[id]
	return s, ok, nil
}

// routed mounts fn on a chi router so URL parameters resolve.
func routed(method, pattern string, fn http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(method, pattern, fn)
	return r
}

func TestSessionHandler(t *testing.T) {
	sessions := &MockSessions{Sessions: map[string]session.Snapshot{
		"room": {
			SessionID: "room",
			Members:   []session.Participant{{ConnID: "c1", DisplayName: "ana"}, {ConnID: "c2", DisplayName: "bo"}},
			Language:  "python",
		},
	}}
	h := handler.NewSessionHandler(sessions, testLogger())

	t.Run("create issues distinct ids", func(t *testing.T) {
		ids := map[string]bool{}
		for range 3 {
			rr := httptest.NewRecorder()
			h.HandleCreate(rr, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
			require.Equal(t, http.StatusCreated, rr.Code)

			var body struct {
				SessionID string `json:"sessionId"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.NotEmpty(t, body.SessionID)
			ids[body.SessionID] = true
		}
		assert.Len(t, ids, 3)
	})

	t.Run("get live session", func(t *testing.T) {
		rr := httptest.NewRecorder()
		routed(http.MethodGet, "/api/sessions/{id}", h.HandleGet).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/room", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{
			"sessionId": "room",
			"members": [{"connId":"c1","displayName":"ana"},{"connId":"c2","displayName":"bo"}],
			"currentLanguage": "python"
		}`, rr.Body.String())
	})

	t.Run("unknown session", func(t *testing.T) {
		rr := httptest.NewRecorder()
		routed(http.MethodGet, "/api/sessions/{id}", h.HandleGet).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "not_found", decodeError(t, rr).Error)
	})

	t.Run("relay stopped", func(t *testing.T) {
		stopped := handler.NewSessionHandler(&MockSessions{Err: relay.ErrClosed}, testLogger())
		rr := httptest.NewRecorder()
		routed(http.MethodGet, "/api/sessions/{id}", stopped.HandleGet).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/room", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
