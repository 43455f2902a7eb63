package twin

import (
	"context"
	"time"

	"github.com/nerrad567/gray-twin/internal/notify"
)

// AccessMode says whether a resource may be read and set from northbound
// clients.
type AccessMode string

// Access modes.
const (
	ReadOnly  AccessMode = "READ_ONLY"
	WriteOnly AccessMode = "WRITE_ONLY"
	Updatable AccessMode = "UPDATABLE"
)

// Readable reports whether values may be read.
func (m AccessMode) Readable() bool { return m != WriteOnly }

// Writable reports whether values may be set by clients.
func (m AccessMode) Writable() bool { return m != ReadOnly }

// UpdateMode says how a resource value reaches the twin.
type UpdateMode string

// Update modes.
const (
	// Pushed resources are updated by producers calling the gateway.
	Pushed UpdateMode = "PUSHED"
	// Pulled resources have a PullFunc invoked lazily by snapshot reads.
	Pulled UpdateMode = "PULLED"
)

// PullFunc fetches the live value of a pulled resource. A zero Timestamp in
// the result means "now".
type PullFunc func(ctx context.Context) (TimedValue, error)

// Admin service and its resources, present on every provider.
const (
	AdminService      = "admin"
	AdminFriendlyName = "friendlyName"
	AdminLocation     = "location"
	AdminIcon         = "icon"
	AdminModelName    = "modelName"
)

var adminResources = []struct {
	name string
	kind Kind
}{
	{AdminFriendlyName, KindString},
	{AdminLocation, KindGeo},
	{AdminIcon, KindString},
	{AdminModelName, KindString},
}

// Resource is a named, typed value slot. Nodes are owned by the Registry and
// must only be touched from inside a gateway command.
type Resource struct {
	name      string
	service   *Service
	kind      Kind
	access    AccessMode
	update    UpdateMode
	pull      PullFunc
	threshold time.Duration
	value     TimedValue
	metadata  map[string]MetaValue
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Service returns the owning service.
func (r *Resource) Service() *Service { return r.service }

// Kind returns the fixed value kind, or KindNone when not fixed yet.
func (r *Resource) Kind() Kind { return r.kind }

// Access returns the access mode.
func (r *Resource) Access() AccessMode { return r.access }

// UpdateMode returns how the value is fed.
func (r *Resource) UpdateMode() UpdateMode { return r.update }

// Pull returns the pull callback, or nil.
func (r *Resource) Pull() PullFunc { return r.pull }

// CacheThreshold returns the per-resource freshness threshold for cached
// reads. Zero means the registry default applies.
func (r *Resource) CacheThreshold() time.Duration { return r.threshold }

// Value returns the current timed value.
func (r *Resource) Value() TimedValue { return r.value }

// Metadata returns a deep copy of the metadata entries.
func (r *Resource) Metadata() map[string]MetaValue {
	out := make(map[string]MetaValue, len(r.metadata))
	for k, mv := range r.metadata {
		out[k] = MetaValue{Value: deepCopyValue(mv.Value), Timestamp: mv.Timestamp}
	}
	return out
}

// MetadataValues returns a deep copy of the metadata values without their
// timestamps.
func (r *Resource) MetadataValues() map[string]any {
	return plainMetadata(r.metadata)
}

// Ref names the resource for notifications.
func (r *Resource) Ref() notify.Ref {
	ref := r.service.Ref()
	ref.Resource = r.name
	return ref
}

// Service is a named, ordered group of resources.
type Service struct {
	name      string
	provider  *Provider
	resources map[string]*Resource
	order     []string
}

func newService(name string, p *Provider) *Service {
	return &Service{name: name, provider: p, resources: make(map[string]*Resource)}
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Provider returns the owning provider.
func (s *Service) Provider() *Provider { return s.provider }

// Resource returns the named resource, or nil.
func (s *Service) Resource(name string) *Resource { return s.resources[name] }

// Resources returns the resources in creation order.
func (s *Service) Resources() []*Resource {
	out := make([]*Resource, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.resources[n])
	}
	return out
}

// Ref names the service for notifications.
func (s *Service) Ref() notify.Ref {
	ref := s.provider.Ref()
	ref.Service = s.name
	return ref
}

func (s *Service) add(r *Resource) {
	s.resources[r.name] = r
	s.order = append(s.order, r.name)
}

func (s *Service) remove(name string) {
	delete(s.resources, name)
	s.order = removeName(s.order, name)
}

// Provider is the root of one device's service tree.
type Provider struct {
	name       string
	model      string
	packageURI string
	created    time.Time
	lastUpdate time.Time
	autoDelete bool
	services   map[string]*Service
	order      []string
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Model returns the model name.
func (p *Provider) Model() string { return p.model }

// PackageURI returns the model package URI.
func (p *Provider) PackageURI() string { return p.packageURI }

// Created returns the creation time.
func (p *Provider) Created() time.Time { return p.created }

// LastUpdate returns the time of the most recent value change.
func (p *Provider) LastUpdate() time.Time { return p.lastUpdate }

// AutoDelete reports whether the provider is removed with its last user
// service.
func (p *Provider) AutoDelete() bool { return p.autoDelete }

// Service returns the named service, or nil.
func (p *Provider) Service(name string) *Service { return p.services[name] }

// Services returns the services in creation order, admin first.
func (p *Provider) Services() []*Service {
	out := make([]*Service, 0, len(p.order))
	for _, n := range p.order {
		out = append(out, p.services[n])
	}
	return out
}

// Admin returns the admin service.
func (p *Provider) Admin() *Service { return p.services[AdminService] }

// Location returns the admin location, if set.
func (p *Provider) Location() (GeoPoint, bool) {
	if r := p.Admin().Resource(AdminLocation); r != nil {
		return r.value.Value.AsGeo()
	}
	return GeoPoint{}, false
}

// Ref names the provider for notifications.
func (p *Provider) Ref() notify.Ref {
	return notify.Ref{ModelPackageURI: p.packageURI, Model: p.model, Provider: p.name}
}

func (p *Provider) userServices() int {
	n := 0
	for _, name := range p.order {
		if name != AdminService {
			n++
		}
	}
	return n
}

func (p *Provider) add(s *Service) {
	p.services[s.name] = s
	p.order = append(p.order, s.name)
}

func (p *Provider) remove(name string) {
	delete(p.services, name)
	p.order = removeName(p.order, name)
}

func removeName(order []string, name string) []string {
	out := make([]string, 0, len(order))
	for _, n := range order {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func plainMetadata(m map[string]MetaValue) map[string]any {
	out := make(map[string]any, len(m))
	for k, mv := range m {
		out[k] = deepCopyValue(mv.Value)
	}
	return out
}
