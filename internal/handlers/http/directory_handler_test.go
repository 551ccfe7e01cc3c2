package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, func(domain.StreamID, bool, int)) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	directory := memory.NewStreamDirectory()
	router := gin.New()
	NewDirectoryHandler(directory).SetupRoutes(router)

	seed := func(id domain.StreamID, live bool, viewers int) {
		require.NoError(t, directory.SetLive(context.Background(), id, live))
		require.NoError(t, directory.SetViewerCount(context.Background(), id, viewers))
	}
	return router, seed
}

func TestListStreams(t *testing.T) {
	router, seed := setupRouter(t)
	seed("stream-1", true, 4)
	seed("stream-2", false, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Streams []domain.StreamStatus `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Streams, 2)
}

func TestGetStream(t *testing.T) {
	router, seed := setupRouter(t)
	seed("stream-1", true, 4)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/stream-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stream domain.StreamStatus `json:"stream"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.StreamID("stream-1"), body.Stream.ID)
	assert.True(t, body.Stream.Live)
	assert.Equal(t, 4, body.Stream.ViewerCount)
}

func TestGetUnknownStreamReturns404(t *testing.T) {
	router, _ := setupRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
