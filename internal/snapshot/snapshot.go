package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-twin/internal/twin"
)

// GetLevel controls whether pulled resources are re-fetched during capture.
type GetLevel int

// GET levels.
const (
	// Cached pulls only when the stored value is missing or older than the
	// resource's freshness threshold.
	Cached GetLevel = iota
	// Weak never pulls.
	Weak
	// Hard always pulls.
	Hard
)

// String returns the upper-case level name.
func (l GetLevel) String() string {
	switch l {
	case Cached:
		return "CACHED"
	case Weak:
		return "WEAK"
	case Hard:
		return "HARD"
	}
	return fmt.Sprintf("GetLevel(%d)", int(l))
}

// ParseGetLevel maps a level name to a GetLevel. The empty string is Cached.
func ParseGetLevel(s string) (GetLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "CACHED":
		return Cached, nil
	case "WEAK":
		return Weak, nil
	case "HARD", "STRONG":
		return Hard, nil
	}
	return Cached, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// ProviderSnapshot is a deep copy of one provider at capture time. It shares
// nothing mutable with the live registry.
type ProviderSnapshot struct {
	Name       string            `json:"name"`
	Model      string            `json:"model"`
	PackageURI string            `json:"package_uri,omitempty"`
	Created    time.Time         `json:"created"`
	LastUpdate time.Time         `json:"last_update"`
	Location   *twin.GeoPoint    `json:"location,omitempty"`
	Services   []ServiceSnapshot `json:"services"`
	CapturedAt time.Time         `json:"captured_at"`
}

// Service returns the named service snapshot, or nil.
func (p *ProviderSnapshot) Service(name string) *ServiceSnapshot {
	for i := range p.Services {
		if p.Services[i].Name == name {
			return &p.Services[i]
		}
	}
	return nil
}

// Resource returns the named resource snapshot, or nil.
func (p *ProviderSnapshot) Resource(service, resource string) *ResourceSnapshot {
	if s := p.Service(service); s != nil {
		return s.Resource(resource)
	}
	return nil
}

// ServiceSnapshot is a deep copy of one service.
type ServiceSnapshot struct {
	Name      string             `json:"name"`
	Resources []ResourceSnapshot `json:"resources"`
}

// Resource returns the named resource snapshot, or nil.
func (s *ServiceSnapshot) Resource(name string) *ResourceSnapshot {
	for i := range s.Resources {
		if s.Resources[i].Name == name {
			return &s.Resources[i]
		}
	}
	return nil
}

// ResourceSnapshot is a deep copy of one resource.
//
// PullError is set when the resource's pull callback failed during capture;
// Value then holds the last known value.
type ResourceSnapshot struct {
	Name       string                    `json:"name"`
	Kind       twin.Kind                 `json:"-"`
	Access     twin.AccessMode           `json:"access"`
	UpdateMode twin.UpdateMode           `json:"update_mode"`
	Value      twin.TimedValue           `json:"value"`
	Metadata   map[string]twin.MetaValue `json:"metadata,omitempty"`
	PullError  error                     `json:"-"`
}

// HasValue reports whether the resource held a value at capture time.
func (r *ResourceSnapshot) HasValue() bool { return !r.Value.IsZero() }
