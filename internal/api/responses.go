package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// The frontend consumes a uniform envelope: successes carry {success, data,
// message}, failures carry {error, message, status_code}; both are stamped.

func respondSuccess(c *gin.Context, status int, data any, message string) {
	body := gin.H{
		"success":   true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		body["data"] = data
	}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":       true,
		"message":     message,
		"status_code": status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

func paginate(page, limit, total int) pagination {
	totalPages := (total + limit - 1) / limit
	return pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// parsePagination clamps the page/limit query values the way the gallery
// always has: page >= 1, 1 <= limit <= 50 with a default of 20.
func parsePagination(c *gin.Context) (page, limit int) {
	page = intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit = intQuery(c, "limit", 20)
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return page, limit
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
