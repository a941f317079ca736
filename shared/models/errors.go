package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")

	// Chapter & Segmentation Errors
	ErrChapterTooShort     = errors.New("chapter text is below the minimum content threshold")
	ErrMalformedAIResponse = errors.New("AI response does not match the expected schema")

	// Enhancement Errors
	ErrEnhancementTerminal   = errors.New("enhancement is already in a terminal state")
	ErrAnchorMismatch        = errors.New("enhancement does not belong to this anchor")
	ErrGenerationFailed      = errors.New("image generation failed")
	ErrGenerationTimeout     = errors.New("image generation timed out while polling")
	ErrRunNotFound           = errors.New("enhancement run not found")
	ErrRunAlreadyInProgress  = errors.New("an enhancement run is already in progress for this chapter")
	ErrCharacterMergedTarget = errors.New("cannot merge a character into itself")

	// User & Authentication Errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)
