package http

import (
	"errors"
	"net/http"

	"github.com/austinromano/creator.v3/internal/core/domain"
	"github.com/austinromano/creator.v3/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// DirectoryHandler exposes the stream presence read-model. This is the only
// surface the UI and analytics layers talk to; they never reach into the
// relay or the registry.
type DirectoryHandler struct {
	directory ports.StreamDirectory
}

func NewDirectoryHandler(directory ports.StreamDirectory) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

func (h *DirectoryHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/:id", h.GetStream)
	}
}

func (h *DirectoryHandler) ListStreams(c *gin.Context) {
	statuses, err := h.directory.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"streams": statuses})
}

func (h *DirectoryHandler) GetStream(c *gin.Context) {
	streamID := domain.StreamID(c.Param("id"))

	status, err := h.directory.Get(c.Request.Context(), streamID)
	if err != nil {
		if errors.Is(err, domain.ErrStreamNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stream": status})
}
