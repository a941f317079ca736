package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"

	sharedMessaging "enchant-server/shared/messaging"
)

// ErrImageGenerationFailed reports a failure from the diffusion backend.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ErrImageSaveFailed reports a failure writing the image to disk.
var ErrImageSaveFailed = errors.New("image save failed")

// StoredImage describes a generated image after it has been written to the
// public image volume.
type StoredImage struct {
	URL         string
	StoragePath string
	Width       int
	Height      int
	SizeBytes   int64
	MimeType    string
}

// GenerationService turns one enhancement image task into a stored image.
type GenerationService interface {
	GenerateAndStore(ctx context.Context, task sharedMessaging.EnhancementImageTaskPayload) (StoredImage, error)
}

type generationServiceImpl struct {
	logger            *zap.Logger
	serverConfig      ImageServerConfig
	httpClient        *http.Client
	imageSavePath     string
	imageBaseURL      string
	promptStyleSuffix string
}

func NewGenerationService(logger *zap.Logger, cfg *Config) (GenerationService, error) {
	if cfg.ImageSavePath == "" {
		return nil, errors.New("image save path (IMAGE_SAVE_PATH) is not configured")
	}
	if cfg.ImagePublicURL == "" {
		return nil, errors.New("image public base URL (IMAGE_PUBLIC_BASE_URL) is not configured")
	}
	return &generationServiceImpl{
		logger:       logger.Named("GenerationService"),
		serverConfig: cfg.ImageServer,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.ImageServer.Timeout) * time.Second,
		},
		imageSavePath:     cfg.ImageSavePath,
		imageBaseURL:      strings.TrimRight(cfg.ImagePublicURL, "/"),
		promptStyleSuffix: cfg.PromptStyleSuffix,
	}, nil
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
	Seed   *int64 `json:"seed,omitempty"`
}

// GenerateAndStore calls the diffusion backend, writes the returned image
// under the task id and reports its public URL and dimensions.
func (s *generationServiceImpl) GenerateAndStore(ctx context.Context, task sharedMessaging.EnhancementImageTaskPayload) (StoredImage, error) {
	log := s.logger.With(
		zap.String("taskID", task.TaskID),
		zap.String("enhancementID", task.EnhancementID.String()))

	styleSuffix := s.promptStyleSuffix
	if task.StyleSuffix != "" {
		// A story-level style prompt overrides the worker default so all
		// images in one story share a look.
		styleSuffix = ", " + task.StyleSuffix
	}
	fullPrompt := task.Prompt + styleSuffix

	ratio := task.Ratio
	if ratio == "" {
		ratio = "3:2"
	}

	imageData, err := s.callBackend(ctx, fullPrompt, ratio, task.Seed)
	if err != nil {
		return StoredImage{}, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	if len(imageData) == 0 {
		return StoredImage{}, fmt.Errorf("%w: backend returned empty data", ErrImageGenerationFailed)
	}
	log.Info("Image data received", zap.Int("sizeBytes", len(imageData)))

	width, height, mimeType := probeImage(imageData)

	fileName := fmt.Sprintf("%s.jpg", task.TaskID)
	filePath := filepath.Join(s.imageSavePath, fileName)
	if err := os.WriteFile(filePath, imageData, 0644); err != nil {
		return StoredImage{}, fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	log.Info("Image saved", zap.String("path", filePath))

	return StoredImage{
		URL:         s.imageBaseURL + "/" + fileName,
		StoragePath: filePath,
		Width:       width,
		Height:      height,
		SizeBytes:   int64(len(imageData)),
		MimeType:    mimeType,
	}, nil
}

func (s *generationServiceImpl) callBackend(ctx context.Context, prompt, ratio string, seed *int64) ([]byte, error) {
	reqBody, err := json.Marshal(generateRequest{Prompt: prompt, Ratio: ratio, Seed: seed})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := s.serverConfig.BaseURL + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(body))
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	return body, nil
}

// probeImage extracts dimensions and mime type from the encoded image.
// Unrecognized formats still get stored; dimensions just stay zero.
func probeImage(data []byte) (width, height int, mimeType string) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "application/octet-stream"
	}
	return cfg.Width, cfg.Height, "image/" + format
}
