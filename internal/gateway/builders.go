package gateway

import (
	"context"
	"time"

	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// Models is the builder entry point of a command.
//
// Builders share the command's handle: they fail with scope.ErrInvalidState
// after the command ends, and each Build succeeds at most once.
type Models struct {
	h   *scope.Handle
	reg *twin.Registry
}

// Model starts a builder for an explicit model.
func (m *Models) Model(name string) *ModelBuilder {
	return &ModelBuilder{h: m.h.Derive(), reg: m.reg, model: twin.Model{Name: name}}
}

// Provider starts a builder for an explicit provider.
func (m *Models) Provider(name string) *ProviderBuilder {
	return &ProviderBuilder{h: m.h.Derive(), reg: m.reg, name: name}
}

// ModelBuilder declares a model.
//
//	tx.Models().Model("thermo").
//	    Frozen().
//	    WithService("env", twin.ResourceSpec{Name: "temp", Kind: twin.KindFloat}).
//	    Build(ctx)
type ModelBuilder struct {
	h     *scope.Handle
	reg   *twin.Registry
	once  scope.Once
	model twin.Model
}

// PackageURI sets the model package.
func (b *ModelBuilder) PackageURI(uri string) *ModelBuilder {
	b.model.PackageURI = uri
	return b
}

// Frozen forbids implicit services and resources on providers of the model.
func (b *ModelBuilder) Frozen() *ModelBuilder {
	b.model.Frozen = true
	return b
}

// WithService declares a service and its resources.
func (b *ModelBuilder) WithService(name string, resources ...twin.ResourceSpec) *ModelBuilder {
	b.model.Services = append(b.model.Services, twin.ServiceSpec{Name: name, Resources: resources})
	return b
}

// Build registers the model.
func (b *ModelBuilder) Build(ctx context.Context) (twin.Model, error) {
	if err := b.h.CheckValid(ctx); err != nil {
		return twin.Model{}, err
	}
	if err := b.once.Claim(); err != nil {
		return twin.Model{}, err
	}
	if err := b.reg.RegisterModel(b.model); err != nil {
		return twin.Model{}, err
	}
	m, _ := b.reg.Model(b.model.Name)
	return m, nil
}

// ProviderBuilder creates a provider explicitly.
type ProviderBuilder struct {
	h            *scope.Handle
	reg          *twin.Registry
	once         scope.Once
	name         string
	hint         twin.ModelHint
	autoDelete   bool
	friendlyName string
	location     *twin.GeoPoint
	icon         string
}

// Model selects the provider's model.
func (b *ProviderBuilder) Model(hint twin.ModelHint) *ProviderBuilder {
	b.hint = hint
	return b
}

// AutoDelete removes the provider with its last user service.
func (b *ProviderBuilder) AutoDelete(on bool) *ProviderBuilder {
	b.autoDelete = on
	return b
}

// FriendlyName sets admin/friendlyName.
func (b *ProviderBuilder) FriendlyName(name string) *ProviderBuilder {
	b.friendlyName = name
	return b
}

// Location sets admin/location.
func (b *ProviderBuilder) Location(g twin.GeoPoint) *ProviderBuilder {
	b.location = &g
	return b
}

// Icon sets admin/icon.
func (b *ProviderBuilder) Icon(icon string) *ProviderBuilder {
	b.icon = icon
	return b
}

// Build creates the provider. It fails with twin.ErrProviderExists when the
// name is taken.
func (b *ProviderBuilder) Build(ctx context.Context) (*ProviderHandle, error) {
	if err := b.h.CheckValid(ctx); err != nil {
		return nil, err
	}
	if err := b.once.Claim(); err != nil {
		return nil, err
	}
	p, err := b.reg.CreateProvider(b.name, b.hint, b.autoDelete)
	if err != nil {
		return nil, err
	}

	admin := p.Admin()
	now := b.reg.Now()
	if b.friendlyName != "" {
		if _, _, _, err := b.reg.ApplyValueUpdate(admin.Resource(twin.AdminFriendlyName), twin.String(b.friendlyName), now); err != nil {
			return nil, err
		}
	}
	if b.location != nil {
		if _, _, _, err := b.reg.ApplyValueUpdate(admin.Resource(twin.AdminLocation), twin.Geo(*b.location), now); err != nil {
			return nil, err
		}
	}
	if b.icon != "" {
		if _, _, _, err := b.reg.ApplyValueUpdate(admin.Resource(twin.AdminIcon), twin.String(b.icon), now); err != nil {
			return nil, err
		}
	}
	return &ProviderHandle{h: b.h, reg: b.reg, p: p}, nil
}

// ServiceBuilder creates a service on an existing provider.
type ServiceBuilder struct {
	h    *scope.Handle
	reg  *twin.Registry
	once scope.Once
	p    *twin.Provider
	name string
}

// Build creates the service, or returns the existing one.
func (b *ServiceBuilder) Build(ctx context.Context) (*ServiceHandle, error) {
	if err := b.h.CheckValid(ctx); err != nil {
		return nil, err
	}
	if err := b.once.Claim(); err != nil {
		return nil, err
	}
	s, err := b.reg.ResolveOrCreateService(b.p, b.name)
	if err != nil {
		return nil, err
	}
	return &ServiceHandle{h: b.h, reg: b.reg, s: s}, nil
}

// ResourceBuilder creates or reconfigures a resource.
type ResourceBuilder struct {
	h    *scope.Handle
	reg  *twin.Registry
	once scope.Once
	s    *twin.Service
	spec twin.ResourceSpec
}

// Kind fixes the value kind.
func (b *ResourceBuilder) Kind(k twin.Kind) *ResourceBuilder {
	b.spec.Kind = k
	return b
}

// Access sets the access mode.
func (b *ResourceBuilder) Access(m twin.AccessMode) *ResourceBuilder {
	b.spec.Access = m
	return b
}

// Pulled makes the resource pull-based. threshold is its freshness window
// for cached reads; zero uses the registry default.
func (b *ResourceBuilder) Pulled(fn twin.PullFunc, threshold time.Duration) *ResourceBuilder {
	b.spec.Update = twin.Pulled
	b.spec.Pull = fn
	b.spec.CacheThreshold = threshold
	return b
}

// Default sets the initial value.
func (b *ResourceBuilder) Default(v any) *ResourceBuilder {
	b.spec.Default = v
	return b
}

// Build applies the declaration.
func (b *ResourceBuilder) Build(ctx context.Context) (*ResourceHandle, error) {
	if err := b.h.CheckValid(ctx); err != nil {
		return nil, err
	}
	if err := b.once.Claim(); err != nil {
		return nil, err
	}
	r, err := b.reg.DefineResource(b.s, b.spec)
	if err != nil {
		return nil, err
	}
	return &ResourceHandle{h: b.h, reg: b.reg, r: r}, nil
}
