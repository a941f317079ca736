package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"enchant-server/shared/models"
)

func (h *Handler) createStory(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "title is required"})
		return
	}

	story, err := h.stories.CreateStory(c.Request.Context(), userID, req.Title, req.Description, req.StylePrompt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *Handler) listStories(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	stories, err := h.stories.ListStories(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stories)
}

func (h *Handler) getStory(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	story, err := h.stories.GetStory(c.Request.Context(), userID, storyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *Handler) deleteStory(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.stories.DeleteStory(c.Request.Context(), userID, storyID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) uploadChapter(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req uploadChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "content is required"})
		return
	}

	chapter, err := h.stories.UploadChapter(c.Request.Context(), userID, storyID, req.Idx, req.Title, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chapter)
}

func (h *Handler) listChapters(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapters, err := h.stories.ListChapters(c.Request.Context(), userID, storyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chapters)
}

func (h *Handler) getChapter(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapter, err := h.stories.GetChapter(c.Request.Context(), userID, chapterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chapter)
}

func (h *Handler) listCharacters(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	storyID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.stories.GetStory(c.Request.Context(), userID, storyID); err != nil {
		h.respondError(c, err)
		return
	}
	characters, err := h.characters.ListByStory(c.Request.Context(), storyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, characters)
}

func (h *Handler) discoverCharacters(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}
	chapterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	chapter, err := h.stories.GetChapter(c.Request.Context(), userID, chapterID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	created, err := h.characters.Discover(c.Request.Context(), chapter.StoryID, chapter.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if created == nil {
		created = []*models.Character{}
	}
	c.JSON(http.StatusOK, created)
}

func (h *Handler) updateCharacterStatus(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	characterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateCharacterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "status is required"})
		return
	}
	if err := h.characters.SetStatus(c.Request.Context(), characterID, models.CharacterStatus(req.Status)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) mergeCharacter(c *gin.Context) {
	if _, ok := h.requireUserID(c); !ok {
		return
	}
	characterID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req mergeCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "canonicalId is required"})
		return
	}
	if err := h.characters.Merge(c.Request.Context(), characterID, req.CanonicalID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
