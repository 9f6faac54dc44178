package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/feeds"
	"github.com/AdvantusAI/m8-collab/internal/service"
)

type FeedHandler struct {
	service *service.FeedService
}

func NewFeedHandler(svc *service.FeedService) *FeedHandler {
	return &FeedHandler{service: svc}
}

// UploadFeeds loads the multipart "files" into the source tables. The optional "kind" form value
// applies to every file; otherwise each kind comes from the file name.
func (h *FeedHandler) UploadFeeds(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	var kind feeds.Kind
	if raw := strings.TrimSpace(c.PostForm("kind")); raw != "" {
		if kind, err = feeds.ParseKind(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind", "details": err.Error()})
			return
		}
	}

	reports := make([]feeds.Report, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file.Filename)
		src, err := file.Open()
		if err != nil {
			log.Error().Err(err).Str("filename", name).Msg("failed to open uploaded file")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload", "details": err.Error(), "loaded": reports})
			return
		}

		rep, err := h.service.Upload(c.Request.Context(), name, src, kind)
		src.Close()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, feeds.ErrUnknownKind) || errors.Is(err, feeds.ErrUnsupported) || errors.Is(err, feeds.ErrMissingColumn) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": "failed to load " + name, "details": err.Error(), "loaded": reports})
			return
		}
		reports = append(reports, rep)
	}

	c.JSON(http.StatusOK, gin.H{"files": reports, "count": len(reports)})
}
