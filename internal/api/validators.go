package api

import (
	"net/http"
	"strconv"
)

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// parsePokemonID parses a national dex id from the URL path
func parsePokemonID(r *http.Request, param string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(param))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
