package devserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisan-platform/live-session/internal/errs"
	"github.com/artisan-platform/live-session/internal/model"
)

// maxRecordingBytes caps recording uploads (in-memory sink).
const maxRecordingBytes = 256 << 20

// ExhibitionHandler handles the REST surface the live session consumes.
type ExhibitionHandler struct {
	store *Store
	hub   *Hub
	urls  *URLConfig
}

// NewExhibitionHandler creates the REST handler.
func NewExhibitionHandler(store *Store, hub *Hub, urls *URLConfig) *ExhibitionHandler {
	return &ExhibitionHandler{store: store, hub: hub, urls: urls}
}

// GetExhibition godoc
// GET /exhibitions/:id
func (h *ExhibitionHandler) GetExhibition(c *gin.Context) {
	ex, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "exhibition not found"})
		return
	}
	// live viewer count is hub-authoritative
	if ex.LiveDetails != nil {
		ex.LiveDetails.CurrentViewers = h.hub.ViewerCount(ex.ID)
	}
	c.JSON(http.StatusOK, ex)
}

// CreateToken godoc
// POST /exhibitions/:id/live-token
func (h *ExhibitionHandler) CreateToken(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		Role model.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if req.Role != model.RoleAuthor && req.Role != model.RoleViewer {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be AUTHOR or VIEWER"})
		return
	}
	token, err := h.store.MintToken(id, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrExhibitionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "exhibition not found"})
		case errors.Is(err, errs.ErrExhibitionArchived):
			c.JSON(http.StatusConflict, gin.H{"error": "exhibition is archived"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"ws_url":    h.urls.SignalingURL(),
		"media_url": h.urls.MediaURL(string(req.Role)),
	})
}

// EndLive godoc
// POST /exhibitions/:id/end-live — idempotent
func (h *ExhibitionHandler) EndLive(c *gin.Context) {
	if err := h.store.EndLive(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "exhibition not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadRecording godoc
// POST /exhibitions/:id/recording — multipart field "recording"
func (h *ExhibitionHandler) UploadRecording(c *gin.Context) {
	id := c.Param("id")
	file, header, err := c.Request.FormFile("recording")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recording file required"})
		return
	}
	defer file.Close()
	blob, err := io.ReadAll(io.LimitReader(file, maxRecordingBytes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	if err := h.store.SaveRecording(id, header.Filename, blob); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "exhibition not found"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"size": len(blob)})
}
