package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"enchant-server/internal/service"
)

func (h *Handler) listAnchors(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.stories.GetChapter(c.Request.Context(), userID, chapterID); err != nil {
		h.respondError(c, err)
		return
	}
	anchors, err := h.anchors.ListForChapter(c.Request.Context(), chapterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, anchors)
}

func (h *Handler) startRun(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	run, err := h.runs.Start(c.Request.Context(), chapterID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, startRunResponse{RunID: run.ID})
}

func (h *Handler) getRun(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	runID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	run, err := h.runs.Get(c.Request.Context(), runID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// createEnhancement dispatches a manual generation job at an existing anchor,
// outside any orchestrated run.
func (h *Handler) createEnhancement(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	anchorID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req createEnhancementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "prompt is required"})
		return
	}

	anchor, err := h.anchors.Get(c.Request.Context(), anchorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if _, err := h.stories.GetChapter(c.Request.Context(), userID, anchor.ChapterID); err != nil {
		h.respondError(c, err)
		return
	}

	enhancement, err := h.enhancements.Create(c.Request.Context(), service.CreateEnhancementInput{
		AnchorID:    anchor.ID,
		UserID:      userID,
		Prompt:      req.Prompt,
		StyleSuffix: req.StyleSuffix,
		Seed:        req.Seed,
		Config:      req.Config,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, enhancement)
}

func (h *Handler) getEnhancement(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	enhancementID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	enhancement, err := h.enhancements.GetByID(c.Request.Context(), enhancementID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, enhancement)
}

func (h *Handler) retryEnhancement(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	enhancementID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req retryEnhancementRequest
	// Body is optional for retries.
	_ = c.ShouldBindJSON(&req)

	retried, err := h.enhancements.Retry(c.Request.Context(), enhancementID, userID, req.StyleSuffix)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, retried)
}

func (h *Handler) listVersions(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	anchorID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	versions, err := h.enhancements.ListVersions(c.Request.Context(), anchorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *Handler) linkCharacter(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	enhancementID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	characterID, ok := parseIDParam(c, "characterId")
	if !ok {
		return
	}
	if err := h.characters.LinkToEnhancement(c.Request.Context(), enhancementID, characterID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listEnhancementCharacters(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	enhancementID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	characters, err := h.characters.ListByEnhancement(c.Request.Context(), enhancementID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, characters)
}
