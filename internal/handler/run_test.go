package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/collab-playground/internal/apperror"
	"github.com/sakif/collab-playground/internal/handler"
	"github.com/sakif/collab-playground/internal/model"
	"github.com/sakif/collab-playground/internal/repository"
)

type MockHistory struct {
	Runs     []model.Run
	LastOpts repository.ListOptions
}

func (m *MockHistory) GetByID(_ context.Context, id string) (*model.Run, error) {
	for _, r := range m.Runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("run", id)
}

func (m *MockHistory) List(_ context.Context, opts repository.ListOptions) ([]model.Run, error) {
	m.LastOpts = opts
	return m.Runs, nil
}

func TestRunHandler(t *testing.T) {
	history := &MockHistory{Runs: []model.Run{{ID: "r1", Language: "java", Status: "success"}}}
	h := handler.NewRunHandler(history, testLogger())

	t.Run("list passes filters", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleList(rr, httptest.NewRequest(http.MethodGet, "/api/runs?limit=5&offset=10&language=java&session=room", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, repository.ListOptions{Limit: 5, Offset: 10, Language: "java", SessionID: "room"}, history.LastOpts)

		var runs []model.Run
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&runs))
		require.Len(t, runs, 1)
		assert.Equal(t, "r1", runs[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleList(rr, httptest.NewRequest(http.MethodGet, "/api/runs?limit=ten", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("get by id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		routed(http.MethodGet, "/api/runs/{id}", h.HandleGetByID).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = httptest.NewRecorder()
		routed(http.MethodGet, "/api/runs/{id}", h.HandleGetByID).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
