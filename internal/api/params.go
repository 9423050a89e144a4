package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/medscope/telegram-insights/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// pageParams reads limit and offset from the query string, clamping the
// limit to [1, 100] and the offset to zero or more.
func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			offset = v
		}
	}
	return limit, offset
}

func paginationInfo(limit, offset int, total int64) *models.PaginationInfo {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return &models.PaginationInfo{
		Page:  offset/limit + 1,
		Size:  limit,
		Total: total,
		Pages: pages,
	}
}

// dateParam parses an optional date query parameter, accepting a bare date
// or a full RFC 3339 timestamp.
func dateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid %s %q (want YYYY-MM-DD or RFC 3339)", name, raw)
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
