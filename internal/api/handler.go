package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"promptcanvas/internal/analytics"
	"promptcanvas/internal/auth"
	"promptcanvas/internal/blob"
	"promptcanvas/internal/config"
	"promptcanvas/internal/identity"
	"promptcanvas/internal/inference"
	"promptcanvas/internal/metrics"
	"promptcanvas/internal/mirror"
	"promptcanvas/internal/model"
	"promptcanvas/internal/quota"
	"promptcanvas/internal/store"
)

// recentWindow is how far back the "recent" gallery filter reaches.
const recentWindow = 7 * 24 * time.Hour

// Generator produces images from prompts. Satisfied by inference.Client;
// tests substitute a mock.
type Generator interface {
	GenerateImage(ctx context.Context, req inference.Request) (*inference.Result, error)
}

// Handler carries the dependencies of every HTTP endpoint. The mirror
// service may be nil when no relational database is configured.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	quota     *quota.Tracker
	generator Generator
	uploader  blob.Uploader
	mirror    mirror.Service
	analytics *analytics.Tracker
	logger    *slog.Logger
}

// NewHandler wires the HTTP layer together.
func NewHandler(cfg *config.Config, st *store.Store, qt *quota.Tracker, gen Generator, up blob.Uploader, mir mirror.Service, an *analytics.Tracker, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		quota:     qt,
		generator: gen,
		uploader:  up,
		mirror:    mir,
		analytics: an,
		logger:    logger.With("component", "api"),
	}
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Seed           int64   `json:"seed"`
	Style          string  `json:"style"`
}

// blockedTerms cause a prompt to be rejected before it reaches the provider.
var blockedTerms = []string{"nude", "naked", "nsfw", "explicit", "porn", "gore"}

func (h *Handler) validatePrompt(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "Prompt is required"
	}
	if len(trimmed) > h.cfg.Limits.MaxPromptLength {
		return fmt.Sprintf("Prompt must be %d characters or less", h.cfg.Limits.MaxPromptLength)
	}
	lowered := strings.ToLower(trimmed)
	for _, term := range blockedTerms {
		if strings.Contains(lowered, term) {
			return "Prompt contains prohibited content"
		}
	}
	return ""
}

// GenerateImage handles authenticated generation. The resulting artifact is
// persisted to the caller's gallery.
func (h *Handler) GenerateImage(c *gin.Context) {
	h.generate(c, false)
}

// GenerateImageAnonymous handles trial generation for signed-out visitors.
// The image is returned inline and never enters a gallery.
func (h *Handler) GenerateImageAnonymous(c *gin.Context) {
	h.generate(c, true)
}

func (h *Handler) generate(c *gin.Context, anonymous bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "Invalid request body")
		return
	}
	if msg := h.validatePrompt(req.Prompt); msg != "" {
		respondError(c, 400, msg)
		return
	}
	if anonymous {
		// Trial requests run with reduced parameters.
		if req.Width > 1024 {
			req.Width = 1024
		}
		if req.Height > 1024 {
			req.Height = 1024
		}
		req.Style = ""
	}

	allowed, current, limit := h.quota.Check(id)
	if !allowed {
		metrics.QuotaDeniedTotal.WithLabelValues(string(id.Class())).Inc()
		stats := h.quota.Stats(id)
		c.JSON(429, gin.H{
			"error":       true,
			"message":     fmt.Sprintf("Daily generation limit reached (%d/%d). Limit resets at %s.", current, limit, stats.ResetAt),
			"status_code": 429,
			"usage":       stats,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	result, err := h.generator.GenerateImage(c.Request.Context(), inference.Request{
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Seed:           req.Seed,
		Style:          req.Style,
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(id.Class()), "error").Inc()
		h.respondGenerationError(c, err)
		return
	}

	artifactID := uuid.NewString()
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(result.ImageData)
	fileURL := dataURL
	stored := false
	if h.uploader != nil && h.uploader.Enabled() {
		url, upErr := h.uploader.Upload(c.Request.Context(), artifactID+".png", result.ImageData, "image/png")
		if upErr != nil {
			h.logger.Warn("object upload failed, serving inline", "artifact_id", artifactID, "error", upErr)
		} else {
			fileURL = url
			stored = true
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	artifact := model.Artifact{
		ID:             artifactID,
		Owner:          id.Key(),
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: req.NegativePrompt,
		Width:          result.Width,
		Height:         result.Height,
		Steps:          result.Steps,
		GuidanceScale:  req.GuidanceScale,
		Seed:           req.Seed,
		Model:          result.Model,
		FileURL:        fileURL,
		ThumbnailURL:   fileURL,
		FileSize:       int64(len(result.ImageData)),
		GenerationTime: result.GenerationTime,
		CreatedAt:      now,
	}

	if !anonymous {
		if err := h.store.SaveArtifact(artifact); err != nil {
			h.logger.Error("failed to persist artifact", "artifact_id", artifactID, "error", err)
			respondError(c, 500, "Failed to save generated image")
			return
		}
		params := generationParams(artifact)
		if email := auth.EmailFrom(c); email != "" {
			params["user_email"] = email
		}
		if err := h.store.RecordGeneration(id.Key(), artifactID, params); err != nil {
			h.logger.Warn("failed to record generation event", "artifact_id", artifactID, "error", err)
		}
		if h.mirror != nil {
			if err := h.mirror.SaveArtifact(artifact); err != nil {
				h.logger.Warn("mirror write failed", "artifact_id", artifactID, "error", err)
			}
		}
	}

	if h.analytics != nil {
		h.analytics.TrackGeneration(analytics.GenerationSummary{
			ArtifactID:     artifactID,
			Owner:          id.Key(),
			Prompt:         artifact.Prompt,
			Model:          artifact.Model,
			Width:          artifact.Width,
			Height:         artifact.Height,
			GenerationTime: artifact.GenerationTime,
			FileSize:       artifact.FileSize,
			CreatedAt:      now,
		})
	}

	committed, err := h.quota.Commit(id)
	if err != nil {
		h.logger.Error("failed to persist usage counter", "identity", id.Key(), "error", err)
	} else if !committed {
		h.logger.Warn("usage limit reached during generation, not charged", "identity", id.Key())
	}

	metrics.GenerationsTotal.WithLabelValues(string(id.Class()), "success").Inc()

	usage := h.quota.Stats(id)
	respondSuccess(c, 201, gin.H{
		"image": gin.H{
			"id":              artifact.ID,
			"url":             dataURL,
			"file_url":        artifact.FileURL,
			"prompt":          artifact.Prompt,
			"width":           artifact.Width,
			"height":          artifact.Height,
			"steps":           artifact.Steps,
			"model":           artifact.Model,
			"generation_time": artifact.GenerationTime,
			"created_at":      artifact.CreatedAt,
			"stored":          stored || !anonymous,
		},
		"usage": usage,
	}, "Image generated successfully")
}

func generationParams(artifact model.Artifact) map[string]any {
	return map[string]any{
		"prompt":          artifact.Prompt,
		"negative_prompt": artifact.NegativePrompt,
		"width":           artifact.Width,
		"height":          artifact.Height,
		"steps":           artifact.Steps,
		"guidance_scale":  artifact.GuidanceScale,
		"seed":            artifact.Seed,
		"model":           artifact.Model,
	}
}

func (h *Handler) respondGenerationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, inference.ErrInvalidRequest):
		respondError(c, 400, "Invalid generation parameters")
	case errors.Is(err, inference.ErrTimeout):
		respondError(c, 504, "Image generation timed out, please try again")
	case errors.Is(err, inference.ErrRateLimited):
		respondError(c, 503, "Generation service is busy, please try again shortly")
	case errors.Is(err, inference.ErrAuthFailed):
		h.logger.Error("provider rejected credentials")
		respondError(c, 502, "Image generation service unavailable")
	default:
		h.logger.Error("generation failed", "error", err)
		respondError(c, 502, "Image generation failed")
	}
}

// ListImages returns the caller's gallery with pagination, filtering and
// search.
func (h *Handler) ListImages(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}

	page, limit := parsePagination(c)
	filter := c.DefaultQuery("filter", "all")
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))
	sortOrder := c.DefaultQuery("sort", "newest")

	all := h.store.ListArtifactsByOwner(id.Key())
	filtered := make([]model.Artifact, 0, len(all))
	cutoff := time.Now().UTC().Add(-recentWindow).Format(time.RFC3339)
	for _, a := range all {
		switch filter {
		case "favorites":
			if !a.IsFavorite {
				continue
			}
		case "recent":
			if a.CreatedAt < cutoff {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(a.Prompt), search) {
			continue
		}
		filtered = append(filtered, a)
	}

	// RFC 3339 timestamps order lexicographically.
	sort.SliceStable(filtered, func(i, j int) bool {
		if sortOrder == "oldest" {
			return filtered[i].CreatedAt < filtered[j].CreatedAt
		}
		return filtered[i].CreatedAt > filtered[j].CreatedAt
	})

	total := len(filtered)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	respondSuccess(c, 200, gin.H{
		"images":     filtered[start:end],
		"pagination": paginate(page, limit, total),
		"filter":     filter,
		"sort":       sortOrder,
	}, "")
}

// GetImage returns one artifact owned by the caller.
func (h *Handler) GetImage(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	artifact, err := h.store.GetArtifact(c.Param("id"), id.Key())
	if err != nil {
		respondError(c, 404, "Image not found")
		return
	}
	respondSuccess(c, 200, artifact, "")
}

// downloadExpiry is how long a presigned download link stays valid.
const downloadExpiry = time.Hour

// DownloadImage returns a download URL for one of the caller's artifacts:
// the inline data URL as-is, or a presigned link for blobs in object
// storage, falling back to the stored URL when presigning is unavailable.
func (h *Handler) DownloadImage(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	artifactID := c.Param("id")
	artifact, err := h.store.GetArtifact(artifactID, id.Key())
	if err != nil {
		respondError(c, 404, "Image not found")
		return
	}
	if artifact.FileURL == "" {
		respondError(c, 404, "Image file not available for download")
		return
	}

	downloadURL := artifact.FileURL
	if !strings.HasPrefix(downloadURL, "data:") && h.uploader != nil && h.uploader.Enabled() {
		url, err := h.uploader.DownloadURL(c.Request.Context(), artifactID+".png", downloadExpiry)
		if err != nil {
			h.logger.Warn("presign failed, using stored URL", "artifact_id", artifactID, "error", err)
		} else {
			downloadURL = url
		}
	}

	respondSuccess(c, 200, gin.H{
		"download_url": downloadURL,
		"filename":     fmt.Sprintf("promptcanvas_%s.png", artifactID),
		"expires_in":   int(downloadExpiry.Seconds()),
	}, "")
}

type saveToGalleryRequest struct {
	ImageData string              `json:"image_data"`
	Metadata  saveGalleryMetadata `json:"metadata"`
}

type saveGalleryMetadata struct {
	ID             string  `json:"id"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Seed           int64   `json:"seed"`
	Model          string  `json:"model"`
	GenerationTime float64 `json:"generation_time"`
}

// SaveToGallery persists an already generated image into the caller's
// gallery. This is how a signed-in user keeps an image from the anonymous
// trial endpoint, which never stores its results.
func (h *Handler) SaveToGallery(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	var req saveToGalleryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "Invalid request body")
		return
	}
	if req.ImageData == "" {
		respondError(c, 400, "Image data is required")
		return
	}
	if strings.TrimSpace(req.Metadata.Prompt) == "" {
		respondError(c, 400, "Image metadata with prompt is required")
		return
	}

	encoded := req.ImageData
	if strings.HasPrefix(encoded, "data:image") {
		if _, rest, found := strings.Cut(encoded, ","); found {
			encoded = rest
		}
	}
	imageData, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		respondError(c, 400, "Invalid image data format")
		return
	}

	artifactID := req.Metadata.ID
	if artifactID == "" {
		artifactID = uuid.NewString()
	}

	fileURL := "data:image/png;base64," + encoded
	uploaded := false
	if h.uploader != nil && h.uploader.Enabled() {
		url, upErr := h.uploader.Upload(c.Request.Context(), artifactID+".png", imageData, "image/png")
		if upErr != nil {
			h.logger.Warn("object upload failed, serving inline", "artifact_id", artifactID, "error", upErr)
		} else {
			fileURL = url
			uploaded = true
		}
	}

	meta := req.Metadata
	if meta.Width <= 0 {
		meta.Width = 1024
	}
	if meta.Height <= 0 {
		meta.Height = 1024
	}
	if meta.Steps <= 0 {
		meta.Steps = 4
	}
	if meta.Model == "" {
		meta.Model = h.cfg.Together.Model
	}

	artifact := model.Artifact{
		ID:             artifactID,
		Owner:          id.Key(),
		Prompt:         strings.TrimSpace(meta.Prompt),
		NegativePrompt: meta.NegativePrompt,
		Width:          meta.Width,
		Height:         meta.Height,
		Steps:          meta.Steps,
		GuidanceScale:  meta.GuidanceScale,
		Seed:           meta.Seed,
		Model:          meta.Model,
		FileURL:        fileURL,
		ThumbnailURL:   fileURL,
		FileSize:       int64(len(imageData)),
		GenerationTime: meta.GenerationTime,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.store.SaveArtifact(artifact); err != nil {
		h.logger.Error("failed to persist artifact", "artifact_id", artifactID, "error", err)
		if uploaded {
			if delErr := h.uploader.Delete(c.Request.Context(), artifactID+".png"); delErr != nil {
				h.logger.Warn("failed to clean up blob after save failure", "artifact_id", artifactID, "error", delErr)
			}
		}
		respondError(c, 500, "Failed to save image metadata")
		return
	}

	params := generationParams(artifact)
	if email := auth.EmailFrom(c); email != "" {
		params["user_email"] = email
	}
	if err := h.store.RecordGeneration(id.Key(), artifactID, params); err != nil {
		h.logger.Warn("failed to record generation event", "artifact_id", artifactID, "error", err)
	}
	if h.mirror != nil {
		if err := h.mirror.SaveArtifact(artifact); err != nil {
			h.logger.Warn("mirror write failed", "artifact_id", artifactID, "error", err)
		}
	}

	respondSuccess(c, 201, gin.H{
		"id":       artifact.ID,
		"url":      artifact.FileURL,
		"prompt":   artifact.Prompt,
		"is_saved": true,
	}, "Image saved to gallery")
}

// DeleteImage removes an artifact from the caller's gallery. The object
// blob is deleted best effort afterwards.
func (h *Handler) DeleteImage(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	artifactID := c.Param("id")
	artifact, err := h.store.DeleteArtifact(artifactID, id.Key())
	if err != nil {
		respondError(c, 404, "Image not found")
		return
	}

	if h.uploader != nil && h.uploader.Enabled() && !strings.HasPrefix(artifact.FileURL, "data:") {
		if err := h.uploader.Delete(c.Request.Context(), artifactID+".png"); err != nil {
			h.logger.Warn("failed to delete object blob", "artifact_id", artifactID, "error", err)
		}
	}
	if h.mirror != nil {
		if err := h.mirror.DeleteArtifact(artifactID, id.Key()); err != nil {
			h.logger.Warn("mirror delete failed", "artifact_id", artifactID, "error", err)
		}
	}

	respondSuccess(c, 200, gin.H{"id": artifactID}, "Image deleted")
}

type favoriteRequest struct {
	IsFavorite bool `json:"is_favorite"`
}

// ToggleFavorite flips the favorite flag on one of the caller's artifacts.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "Invalid request body")
		return
	}
	artifactID := c.Param("id")
	if err := h.store.SetFavorite(artifactID, id.Key(), req.IsFavorite); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, 404, "Image not found")
			return
		}
		h.logger.Error("failed to update favorite", "artifact_id", artifactID, "error", err)
		respondError(c, 500, "Failed to update image")
		return
	}
	if h.mirror != nil {
		if err := h.mirror.SetFavorite(artifactID, id.Key(), req.IsFavorite); err != nil {
			h.logger.Warn("mirror favorite update failed", "artifact_id", artifactID, "error", err)
		}
	}
	respondSuccess(c, 200, gin.H{"id": artifactID, "is_favorite": req.IsFavorite}, "")
}

// UserUsage reports the caller's remaining daily quota.
func (h *Handler) UserUsage(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	respondSuccess(c, 200, h.quota.Stats(id), "")
}

// UserHistory returns the caller's generation events, newest first.
func (h *Handler) UserHistory(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		respondError(c, 401, "Authentication required")
		return
	}
	page, limit := parsePagination(c)

	// Event timestamps carry sub-second precision, where fractional and
	// whole-second renderings do not order lexicographically. Compare
	// parsed times instead.
	events := h.store.ListEventsByOwner(id.Key())
	sort.SliceStable(events, func(i, j int) bool {
		ti, errI := time.Parse(time.RFC3339Nano, events[i].CreatedAt)
		tj, errJ := time.Parse(time.RFC3339Nano, events[j].CreatedAt)
		if errI != nil || errJ != nil {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return ti.After(tj)
	})

	total := len(events)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	respondSuccess(c, 200, gin.H{
		"history":    events[start:end],
		"pagination": paginate(page, limit, total),
	}, "")
}

// AdminStats reports store health plus the mirror row count when a
// relational database is configured.
func (h *Handler) AdminStats(c *gin.Context) {
	data := gin.H{"store": h.store.Stats()}
	if h.mirror != nil {
		count, err := h.mirror.CountArtifacts()
		if err != nil {
			h.logger.Warn("mirror count failed", "error", err)
		} else {
			data["mirror_artifacts"] = count
		}
	}
	respondSuccess(c, 200, data, "")
}

// AdminAnalytics returns the platform rollup and recent generations.
func (h *Handler) AdminAnalytics(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	if limit < 1 || limit > analyticsRecentMax {
		limit = 50
	}
	respondSuccess(c, 200, gin.H{
		"stats":  h.analytics.Stats(),
		"recent": h.analytics.Recent(limit),
	}, "")
}

const analyticsRecentMax = 500

type resetUsageRequest struct {
	UserID string `json:"user_id"`
	IP     string `json:"ip"`
}

// AdminResetUsage clears today's usage counter for one identity.
func (h *Handler) AdminResetUsage(c *gin.Context) {
	var req resetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, 400, "Invalid request body")
		return
	}
	var id identity.Identity
	switch {
	case req.UserID != "":
		id = identity.User(req.UserID)
	case req.IP != "":
		id = identity.Anonymous(req.IP)
	default:
		respondError(c, 400, "user_id or ip is required")
		return
	}
	if err := h.quota.Reset(id); err != nil {
		h.logger.Error("usage reset failed", "identity", id.Key(), "error", err)
		respondError(c, 500, "Failed to reset usage")
		return
	}
	h.logger.Info("usage counter reset", "identity", id.Key())
	respondSuccess(c, 200, gin.H{"identity": id.Key()}, "Usage reset")
}

// AdminSnapshot forces an immediate timestamped backup of both collections.
func (h *Handler) AdminSnapshot(c *gin.Context) {
	h.store.Snapshot()
	respondSuccess(c, 200, nil, "Snapshot written")
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}
