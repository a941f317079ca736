package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/internal/service"
	"enchant-server/shared/authutils"
	sharedMiddleware "enchant-server/shared/middleware"
	"enchant-server/shared/models"
)

// Handler serves the enhancement API.
type Handler struct {
	stories      *service.StoryService
	anchors      *service.AnchorService
	enhancements *service.EnhancementService
	characters   *service.CharacterService
	runs         *service.RunService
	verifier     *authutils.JWTVerifier
	logger       *zap.Logger
}

func NewHandler(
	stories *service.StoryService,
	anchors *service.AnchorService,
	enhancements *service.EnhancementService,
	characters *service.CharacterService,
	runs *service.RunService,
	jwtSecret string,
	logger *zap.Logger,
) *Handler {
	verifier, err := authutils.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create JWT verifier", zap.Error(err))
	}
	return &Handler{
		stories:      stories,
		anchors:      anchors,
		enhancements: enhancements,
		characters:   characters,
		runs:         runs,
		verifier:     verifier,
		logger:       logger.Named("Handler"),
	}
}

// RegisterRoutes wires the API routes onto the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := sharedMiddleware.AuthMiddlewareForGin(h.verifier, h.logger)
	api := router.Group("/api")

	stories := api.Group("/stories", auth)
	{
		stories.POST("", h.createStory)
		stories.GET("", h.listStories)
		stories.GET("/:id", h.getStory)
		stories.DELETE("/:id", h.deleteStory)
		stories.POST("/:id/chapters", h.uploadChapter)
		stories.GET("/:id/chapters", h.listChapters)
		stories.GET("/:id/characters", h.listCharacters)
	}

	chapters := api.Group("/chapters", auth)
	{
		chapters.GET("/:id", h.getChapter)
		chapters.GET("/:id/anchors", h.listAnchors)
		chapters.POST("/:id/enhance", h.startRun)
		chapters.POST("/:id/characters/discover", h.discoverCharacters)
	}

	anchors := api.Group("/anchors", auth)
	{
		anchors.GET("/:id/versions", h.listVersions)
		anchors.POST("/:id/enhancements", h.createEnhancement)
	}

	enhancements := api.Group("/enhancements", auth)
	{
		enhancements.GET("/:id", h.getEnhancement)
		enhancements.POST("/:id/retry", h.retryEnhancement)
		enhancements.POST("/:id/characters/:characterId", h.linkCharacter)
		enhancements.GET("/:id/characters", h.listEnhancementCharacters)
	}

	runs := api.Group("/enhancement-runs", auth)
	{
		runs.GET("/:id", h.getRun)
	}

	characters := api.Group("/characters", auth)
	{
		characters.PATCH("/:id/status", h.updateCharacterStatus)
		characters.POST("/:id/merge", h.mergeCharacter)
	}

	// Realtime run updates. The token travels as a query parameter because
	// browsers cannot set headers on websocket upgrades.
	router.GET("/ws/enhancement-runs/:id", h.watchRun)
}

// requireUserID pulls the authenticated user id or aborts with 401.
func (h *Handler) requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := sharedMiddleware.UserIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, APIError{Message: "authentication required"})
		return uuid.Nil, false
	}
	return userID, true
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, APIError{Message: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrRunNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: "not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, APIError{Message: "forbidden"})
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrCharacterMergedTarget), errors.Is(err, models.ErrChapterTooShort):
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrRunAlreadyInProgress):
		c.JSON(http.StatusConflict, APIError{Message: "enhancement run already in progress for this chapter"})
	case errors.Is(err, models.ErrEnhancementTerminal):
		c.JSON(http.StatusConflict, APIError{Message: "enhancement is already in a terminal state"})
	default:
		h.logger.Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "internal server error"})
	}
}
