package httppull

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// Source fetches one resource value over HTTP.
type Source struct {
	cfg    config.PullResourceConfig
	kind   twin.Kind
	client *http.Client
}

// NewSource creates a source for one configured resource. client may be
// nil to use http.DefaultClient; request deadlines come from the pull
// context.
func NewSource(cfg config.PullResourceConfig, client *http.Client) (*Source, error) {
	kind, err := twin.ParseKind(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("pull %s/%s/%s: %w", cfg.Provider, cfg.Service, cfg.Resource, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{cfg: cfg, kind: kind, client: client}, nil
}

// Kind returns the declared resource kind.
func (s *Source) Kind() twin.Kind { return s.kind }

// CacheThreshold returns the configured freshness window; zero defers to
// the registry default.
func (s *Source) CacheThreshold() time.Duration {
	return time.Duration(s.cfg.CacheThresholdMs) * time.Millisecond
}

// Fetch implements twin.PullFunc.
func (s *Source) Fetch(ctx context.Context) (twin.TimedValue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return twin.TimedValue{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return twin.TimedValue{}, fmt.Errorf("fetching %s: %w", s.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return twin.TimedValue{}, fmt.Errorf("%w: %s from %s", ErrBadStatus, resp.Status, s.cfg.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return twin.TimedValue{}, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > maxBodyBytes {
		return twin.TimedValue{}, ErrResponseTooLarge
	}

	raw, err := decodeBody(body, s.kind)
	if err != nil {
		return twin.TimedValue{}, err
	}
	raw, err = extract(raw, s.cfg.Field)
	if err != nil {
		return twin.TimedValue{}, err
	}

	v, err := twin.Convert(normalize(raw), s.kind)
	if err != nil {
		return twin.TimedValue{}, err
	}
	// Zero timestamp: the pull path stamps the value with the current time.
	return twin.TimedValue{Value: v}, nil
}

// decodeBody parses JSON bodies. A non-JSON body is a string value, or a
// number when the kind is numeric.
func decodeBody(body []byte, kind twin.Kind) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil {
		return v, nil
	}

	text := strings.TrimSpace(string(body))
	if kind == twin.KindInt || kind == twin.KindFloat {
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", twin.ErrTypeMismatch, text)
		}
		return json.Number(text), nil
	}
	return text, nil
}

// extract walks a dot-separated path. Numeric segments index arrays.
func extract(v any, field string) (any, error) {
	if field == "" {
		return v, nil
	}
	for _, seg := range strings.Split(field, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
			}
			v = node[i]
		default:
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
		}
	}
	return v, nil
}

// normalize turns nested json.Number values into int64 or float64 so
// composite values compare and serialise like other twin values.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return v
}
