package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-twin/internal/intake"
	"github.com/nerrad567/gray-twin/internal/session"
	"github.com/nerrad567/gray-twin/internal/snapshot"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// maxQueryParamLen bounds identifiers taken from the query string.
const maxQueryParamLen = 256

// httpSessionUser names sessions opened for plain HTTP requests.
const httpSessionUser = "http"

// ResourceView is the JSON form of a resource snapshot.
type ResourceView struct {
	Name       string                    `json:"name"`
	Kind       string                    `json:"kind"`
	Access     twin.AccessMode           `json:"access"`
	UpdateMode twin.UpdateMode           `json:"update_mode"`
	Value      any                       `json:"value"`
	Timestamp  *time.Time                `json:"timestamp,omitempty"`
	Metadata   map[string]twin.MetaValue `json:"metadata,omitempty"`
	PullError  string                    `json:"pull_error,omitempty"`
}

// ServiceView is the JSON form of a service snapshot.
type ServiceView struct {
	Name      string         `json:"name"`
	Resources []ResourceView `json:"resources"`
}

// ProviderView is the JSON form of a provider snapshot.
type ProviderView struct {
	Name       string         `json:"name"`
	Model      string         `json:"model"`
	PackageURI string         `json:"package_uri,omitempty"`
	Created    time.Time      `json:"created"`
	LastUpdate time.Time      `json:"last_update"`
	Location   *twin.GeoPoint `json:"location,omitempty"`
	CapturedAt time.Time      `json:"captured_at"`
	Services   []ServiceView  `json:"services"`
}

// setValueRequest is the body of PUT .../value.
type setValueRequest struct {
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
}

// setMetadataRequest is the body of PUT .../metadata.
type setMetadataRequest struct {
	Metadata  map[string]any `json:"metadata"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func resourceView(rs snapshot.ResourceSnapshot) ResourceView {
	v := ResourceView{
		Name:       rs.Name,
		Kind:       rs.Kind.String(),
		Access:     rs.Access,
		UpdateMode: rs.UpdateMode,
		Metadata:   rs.Metadata,
	}
	if rs.HasValue() {
		ts := rs.Value.Timestamp
		v.Value = rs.Value.Value.Interface()
		v.Timestamp = &ts
	}
	if rs.PullError != nil {
		v.PullError = rs.PullError.Error()
	}
	return v
}

func providerView(ps snapshot.ProviderSnapshot) ProviderView {
	v := ProviderView{
		Name:       ps.Name,
		Model:      ps.Model,
		PackageURI: ps.PackageURI,
		Created:    ps.Created,
		LastUpdate: ps.LastUpdate,
		Location:   ps.Location,
		CapturedAt: ps.CapturedAt,
		Services:   make([]ServiceView, 0, len(ps.Services)),
	}
	for _, svc := range ps.Services {
		sv := ServiceView{Name: svc.Name, Resources: make([]ResourceView, 0, len(svc.Resources))}
		for _, rs := range svc.Resources {
			sv.Resources = append(sv.Resources, resourceView(rs))
		}
		v.Services = append(v.Services, sv)
	}
	return v
}

// withSession runs fn inside a session scoped to the request. The session
// is closed when fn returns.
func (s *Server) withSession(r *http.Request, fn func(ctx context.Context, sess *session.Session)) {
	sess, ctx := s.sessions.Open(r.Context(), httpSessionUser)
	defer sess.Close()
	fn(ctx, sess)
}

// handleListProviders captures every provider selected by the query.
//
// Query parameters: provider, service, resource, model, near=lat,lon,
// radius (metres, default 1000), level (cached, weak, hard).
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	level, err := snapshot.ParseGetLevel(r.URL.Query().Get("level"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	criterion, err := parseCriterion(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		snaps, err := sess.Filter(ctx, criterion, level)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		views := make([]ProviderView, 0, len(snaps))
		for _, ps := range snaps {
			views = append(views, providerView(ps))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"providers": views,
			"count":     len(views),
			"level":     level.String(),
		})
	})
}

// handleGetProvider captures one provider.
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	level, err := snapshot.ParseGetLevel(r.URL.Query().Get("level"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		snaps, err := sess.Filter(ctx, snapshot.Match(provider, "", ""), level)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		if len(snaps) == 0 {
			writeNotFound(w, "provider not found")
			return
		}
		writeJSON(w, http.StatusOK, providerView(snaps[0]))
	})
}

// handleDeleteProvider removes a provider and everything under it.
func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		if err := sess.RemoveProvider(ctx, provider); err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleDescribeService lists the resources of a service.
func (s *Server) handleDescribeService(w http.ResponseWriter, r *http.Request) {
	provider, service := chi.URLParam(r, "provider"), chi.URLParam(r, "service")
	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		info, err := sess.DescribeService(ctx, provider, service)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	})
}

// handleDescribeResource returns the declaration of a resource.
func (s *Server) handleDescribeResource(w http.ResponseWriter, r *http.Request) {
	provider, service, resource := resourcePath(r)
	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		info, err := sess.DescribeResource(ctx, provider, service, resource)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":           provider,
			"service":            service,
			"name":               info.Name,
			"kind":               info.Kind.String(),
			"access":             info.Access,
			"update_mode":        info.UpdateMode,
			"cache_threshold_ms": info.CacheThreshold.Milliseconds(),
		})
	})
}

// handleGetValue reads one resource value. A failed pull is reported in the
// pull_error field next to the last known value.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	provider, service, resource := resourcePath(r)
	level, err := snapshot.ParseGetLevel(r.URL.Query().Get("level"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		rs, err := sess.ResourceValue(ctx, provider, service, resource, level)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resourceView(rs))
	})
}

// handleSetValue writes a resource value from the northbound side.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	provider, service, resource := resourcePath(r)

	var req setValueRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ts, err := parseTimeParam(req.Timestamp, time.Time{})
	if err != nil {
		writeBadRequest(w, "invalid timestamp")
		return
	}

	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		changed, err := sess.SetResourceValue(ctx, provider, service, resource, req.Value, ts)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
	})
}

// handleSetMetadata merges metadata into a resource.
func (s *Server) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	provider, service, resource := resourcePath(r)

	var req setMetadataRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Metadata) == 0 {
		writeBadRequest(w, "metadata is required")
		return
	}
	ts, err := parseTimeParam(req.Timestamp, time.Time{})
	if err != nil {
		writeBadRequest(w, "invalid timestamp")
		return
	}

	s.withSession(r, func(ctx context.Context, sess *session.Session) {
		changes, _ := intake.Normalize(req.Metadata).(map[string]any)
		changed, err := sess.SetResourceMetadata(ctx, provider, service, resource, changes, ts)
		if err != nil {
			s.writeTwinError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
	})
}

// resourcePath returns the provider, service and resource URL parameters.
func resourcePath(r *http.Request) (provider, service, resource string) {
	return chi.URLParam(r, "provider"), chi.URLParam(r, "service"), chi.URLParam(r, "resource")
}

// decodeBody decodes a JSON request body keeping numbers exact.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// defaultNearRadius applies when near is given without radius.
const defaultNearRadius = 1000.0

// parseCriterion builds a snapshot criterion from query parameters.
func parseCriterion(r *http.Request) (snapshot.Criterion, error) {
	q := r.URL.Query()
	for _, key := range []string{"provider", "service", "resource", "model"} {
		if len(q.Get(key)) > maxQueryParamLen {
			return nil, fmt.Errorf("%s exceeds maximum length", key)
		}
	}

	criteria := []snapshot.Criterion{snapshot.Match(q.Get("provider"), q.Get("service"), q.Get("resource"))}
	if model := q.Get("model"); model != "" {
		criteria = append(criteria, snapshot.ModelIs(model))
	}

	if near := q.Get("near"); near != "" {
		center, err := parseGeoPoint(near)
		if err != nil {
			return nil, err
		}
		radius := defaultNearRadius
		if raw := q.Get("radius"); raw != "" {
			radius, err = strconv.ParseFloat(raw, 64)
			if err != nil || radius <= 0 {
				return nil, fmt.Errorf("invalid radius")
			}
		}
		criteria = append(criteria, snapshot.Near(center, radius))
	}

	if len(criteria) == 1 {
		return criteria[0], nil
	}
	return snapshot.And(criteria...), nil
}

// parseGeoPoint parses "lat,lon".
func parseGeoPoint(raw string) (twin.GeoPoint, error) {
	latStr, lonStr, ok := strings.Cut(raw, ",")
	if !ok {
		return twin.GeoPoint{}, fmt.Errorf("near must be lat,lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return twin.GeoPoint{}, fmt.Errorf("invalid latitude")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || lon < -180 || lon > 180 {
		return twin.GeoPoint{}, fmt.Errorf("invalid longitude")
	}
	return twin.GeoPoint{Lat: lat, Lon: lon}, nil
}
