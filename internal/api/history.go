package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-twin/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// handleGetHistory returns recorded values of one resource, newest first.
//
// Query parameters: from, to (RFC3339 or unix seconds), limit.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	provider, service, resource := resourcePath(r)

	if s.history == nil {
		writeUnavailable(w, "value history unavailable")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, err := parseTimeParam(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		writeBadRequest(w, "invalid from timestamp")
		return
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), time.Time{})
	if err != nil {
		writeBadRequest(w, "invalid to timestamp")
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		writeBadRequest(w, "to must be after from")
		return
	}

	entries, err := s.history.Query(r.Context(), provider, service, resource, history.Range{
		From:  from,
		To:    to,
		Limit: limit,
	})
	if err != nil {
		s.writeTwinError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"service":  service,
		"resource": resource,
		"history":  entries,
		"count":    len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseTimeParam parses an RFC3339 or Unix timestamp, with a fallback default.
func parseTimeParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}

	if parsed, err := parseRFC3339(raw); err == nil {
		return parsed, nil
	}

	return parseUnixTimestamp(raw)
}

// parseRFC3339 parses a timestamp in RFC3339 or RFC3339Nano format.
func parseRFC3339(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// parseUnixTimestamp parses a Unix timestamp string into time.Time.
func parseUnixTimestamp(raw string) (time.Time, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}

	seconds, fraction := math.Modf(value)
	return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC(), nil
}
