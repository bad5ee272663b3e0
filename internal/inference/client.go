// Package inference calls the Together AI image-generation endpoint. The
// provider speaks an OpenAI-style JSON API; images come back base64-encoded
// in the response body.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"promptcanvas/internal/config"
)

// Generation errors mapped from upstream status codes. Handlers translate
// these into user-facing responses instead of generic 500s.
var (
	ErrInvalidRequest = errors.New("inference: invalid generation request")
	ErrAuthFailed     = errors.New("inference: authentication failed")
	ErrRateLimited    = errors.New("inference: upstream rate limit exceeded")
	ErrTimeout        = errors.New("inference: generation timed out")
)

// maxSteps caps diffusion steps; the FLUX.1-schnell model degrades beyond 4.
const maxSteps = 4

// HTTPClient defines the interface for making HTTP requests.
// This allows for mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// styleModifiers are appended to the prompt when a preset is requested.
var styleModifiers = map[string]string{
	"photographic": ", professional photography, high quality, detailed, realistic",
	"digital-art":  ", digital art, concept art, detailed, vibrant colors",
	"cinematic":    ", cinematic lighting, dramatic, film still, high quality",
	"anime":        ", anime style, manga, detailed, vibrant colors",
	"fantasy":      ", fantasy art, magical, detailed, epic",
	"abstract":     ", abstract art, artistic, creative, unique style",
	"vintage":      ", vintage style, retro, classic, aged look",
	"minimalist":   ", minimalist, clean, simple, elegant",
}

// Request describes one image generation.
type Request struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Seed           int64
	Style          string
}

// Result is a successfully generated image with its decoded bytes.
type Result struct {
	ImageData      []byte
	Model          string
	Width          int
	Height         int
	Steps          int
	GenerationTime float64
}

// Client talks to the Together AI images endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewClient creates a Client from the Together configuration.
func NewClient(cfg config.TogetherConfig, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger.With("component", "inference"),
	}
}

type generationPayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	N              int    `json:"n"`
	ResponseFormat string `json:"response_format"`
	Seed           int64  `json:"seed,omitempty"`
}

type generationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage runs one generation and returns the decoded image bytes.
func (c *Client) GenerateImage(ctx context.Context, req Request) (*Result, error) {
	prompt := req.Prompt
	if mod, ok := styleModifiers[req.Style]; ok {
		prompt += mod
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	steps := req.Steps
	if steps <= 0 || steps > maxSteps {
		steps = maxSteps
	}

	payload := generationPayload{
		Model:          c.model,
		Prompt:         prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          width,
		Height:         height,
		Steps:          steps,
		N:              1,
		ResponseFormat: "b64_json",
	}
	if req.Seed > 0 {
		payload.Seed = req.Seed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("Generating image", "model", c.model, "width", width, "height", height, "steps", steps)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}

	var decoded generationResponse
	if resp.StatusCode != http.StatusOK {
		// Best effort extraction of the upstream message.
		_ = json.Unmarshal(respBody, &decoded)
		msg := decoded.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		c.logger.Error("Generation request rejected", "status", resp.StatusCode, "message", msg)

		switch resp.StatusCode {
		case http.StatusBadRequest:
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrAuthFailed, msg)
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg)
		default:
			return nil, fmt.Errorf("generation request returned status %d: %s", resp.StatusCode, msg)
		}
	}

	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("no image data in generation response")
	}

	imageData, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}

	c.logger.Info("Image generated", "seconds", elapsed, "bytes", len(imageData))
	return &Result{
		ImageData:      imageData,
		Model:          c.model,
		Width:          width,
		Height:         height,
		Steps:          steps,
		GenerationTime: elapsed,
	}, nil
}
