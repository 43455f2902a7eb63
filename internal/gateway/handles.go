package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// Twin is the handle-checked view of the registry given to a command.
// Every method fails with scope.ErrInvalidState once the command has ended
// and with scope.ErrCrossContextAccess when called with a context that is
// not the command's.
type Twin struct {
	h   *scope.Handle
	reg *twin.Registry
}

// Provider returns a handle on the named provider.
func (t *Twin) Provider(ctx context.Context, name string) (*ProviderHandle, error) {
	if err := t.h.CheckValid(ctx); err != nil {
		return nil, err
	}
	p, err := t.reg.Provider(name)
	if err != nil {
		return nil, err
	}
	return t.provider(p), nil
}

// Providers returns handles on every provider, ordered by name.
func (t *Twin) Providers(ctx context.Context) ([]*ProviderHandle, error) {
	if err := t.h.CheckValid(ctx); err != nil {
		return nil, err
	}
	ps := t.reg.Providers()
	out := make([]*ProviderHandle, len(ps))
	for i, p := range ps {
		out[i] = t.provider(p)
	}
	return out, nil
}

// RemoveProvider deletes a provider and everything under it.
func (t *Twin) RemoveProvider(ctx context.Context, name string) error {
	if err := t.h.CheckValid(ctx); err != nil {
		return err
	}
	return t.reg.RemoveProvider(name)
}

// UpdateValue is the southbound write path: it resolves or creates the
// provider, service and resource, then stores value observed at ts.
//
// kind is an optional type hint; twin.KindNone lets the value decide. Access
// modes are not checked here since producers own their resources.
func (t *Twin) UpdateValue(ctx context.Context, hint twin.ModelHint, provider, service, resource string, value any, kind twin.Kind, ts time.Time) (bool, error) {
	if err := t.h.CheckValid(ctx); err != nil {
		return false, err
	}
	if err := t.reg.ValidatePath(hint, provider, service, resource, kind); err != nil {
		return false, err
	}

	convKind := kind
	if convKind == twin.KindNone {
		if existing, err := t.reg.Lookup(provider, service, resource); err == nil {
			convKind = existing.Kind()
		}
	}
	v, err := twin.Convert(value, convKind)
	if err != nil {
		return false, err
	}
	if !kind.Accepts(v) {
		return false, fmt.Errorf("%w: %s/%s/%s declared %s, got %s", twin.ErrTypeMismatch, provider, service, resource, kind, v.Kind())
	}

	res, err := t.resolve(hint, provider, service, resource, kind)
	if err != nil {
		return false, err
	}
	_, _, changed, err := t.reg.ApplyValueUpdate(res, v, ts)
	return changed, err
}

// UpdateMetadata is the southbound metadata path. It creates the resource
// path when needed.
func (t *Twin) UpdateMetadata(ctx context.Context, hint twin.ModelHint, provider, service, resource string, changes map[string]any, ts time.Time, removeNulls, removeMissing bool) (bool, error) {
	if err := t.h.CheckValid(ctx); err != nil {
		return false, err
	}
	if err := t.reg.ValidatePath(hint, provider, service, resource, twin.KindNone); err != nil {
		return false, err
	}
	res, err := t.resolve(hint, provider, service, resource, twin.KindNone)
	if err != nil {
		return false, err
	}
	_, _, changed, err := t.reg.ApplyMetadataUpdate(res, changes, ts, removeNulls, removeMissing)
	return changed, err
}

func (t *Twin) resolve(hint twin.ModelHint, provider, service, resource string, kind twin.Kind) (*twin.Resource, error) {
	p, err := t.reg.ResolveOrCreateProvider(provider, hint)
	if err != nil {
		return nil, err
	}
	s, err := t.reg.ResolveOrCreateService(p, service)
	if err != nil {
		return nil, err
	}
	return t.reg.ResolveOrCreateResource(s, resource, kind)
}

func (t *Twin) provider(p *twin.Provider) *ProviderHandle {
	return &ProviderHandle{h: t.h, reg: t.reg, p: p}
}

// ProviderHandle is a command-scoped reference to one provider.
type ProviderHandle struct {
	h   *scope.Handle
	reg *twin.Registry
	p   *twin.Provider
}

// Name returns the provider name.
func (ph *ProviderHandle) Name() string { return ph.p.Name() }

// Model returns the provider's model name.
func (ph *ProviderHandle) Model() string { return ph.p.Model() }

func (ph *ProviderHandle) check(ctx context.Context) error {
	if err := ph.h.CheckValid(ctx); err != nil {
		return err
	}
	if cur, err := ph.reg.Provider(ph.p.Name()); err != nil || cur != ph.p {
		return fmt.Errorf("%w: %s", twin.ErrProviderNotFound, ph.p.Name())
	}
	return nil
}

// Service returns a handle on the named service.
func (ph *ProviderHandle) Service(ctx context.Context, name string) (*ServiceHandle, error) {
	if err := ph.check(ctx); err != nil {
		return nil, err
	}
	s := ph.p.Service(name)
	if s == nil {
		return nil, fmt.Errorf("%w: %s/%s", twin.ErrServiceNotFound, ph.p.Name(), name)
	}
	return &ServiceHandle{h: ph.h, reg: ph.reg, s: s}, nil
}

// Services returns handles on every service in creation order.
func (ph *ProviderHandle) Services(ctx context.Context) ([]*ServiceHandle, error) {
	if err := ph.check(ctx); err != nil {
		return nil, err
	}
	ss := ph.p.Services()
	out := make([]*ServiceHandle, len(ss))
	for i, s := range ss {
		out[i] = &ServiceHandle{h: ph.h, reg: ph.reg, s: s}
	}
	return out, nil
}

// NewService starts a builder for a service of this provider.
func (ph *ProviderHandle) NewService(name string) *ServiceBuilder {
	return &ServiceBuilder{h: ph.h.Derive(), reg: ph.reg, p: ph.p, name: name}
}

// RemoveService deletes one service.
func (ph *ProviderHandle) RemoveService(ctx context.Context, name string) error {
	if err := ph.check(ctx); err != nil {
		return err
	}
	return ph.reg.RemoveService(ph.p, name)
}

// Remove deletes the provider.
func (ph *ProviderHandle) Remove(ctx context.Context) error {
	if err := ph.check(ctx); err != nil {
		return err
	}
	return ph.reg.RemoveProvider(ph.p.Name())
}

// ServiceHandle is a command-scoped reference to one service.
type ServiceHandle struct {
	h   *scope.Handle
	reg *twin.Registry
	s   *twin.Service
}

// Name returns the service name.
func (sh *ServiceHandle) Name() string { return sh.s.Name() }

func (sh *ServiceHandle) check(ctx context.Context) error {
	if err := sh.h.CheckValid(ctx); err != nil {
		return err
	}
	p := sh.s.Provider()
	if cur, err := sh.reg.Provider(p.Name()); err != nil || cur != p || p.Service(sh.s.Name()) != sh.s {
		return fmt.Errorf("%w: %s/%s", twin.ErrServiceNotFound, p.Name(), sh.s.Name())
	}
	return nil
}

// Resource returns a handle on the named resource.
func (sh *ServiceHandle) Resource(ctx context.Context, name string) (*ResourceHandle, error) {
	if err := sh.check(ctx); err != nil {
		return nil, err
	}
	r := sh.s.Resource(name)
	if r == nil {
		return nil, fmt.Errorf("%w: %s/%s/%s", twin.ErrResourceNotFound, sh.s.Provider().Name(), sh.s.Name(), name)
	}
	return &ResourceHandle{h: sh.h, reg: sh.reg, r: r}, nil
}

// Resources returns handles on every resource in creation order.
func (sh *ServiceHandle) Resources(ctx context.Context) ([]*ResourceHandle, error) {
	if err := sh.check(ctx); err != nil {
		return nil, err
	}
	rs := sh.s.Resources()
	out := make([]*ResourceHandle, len(rs))
	for i, r := range rs {
		out[i] = &ResourceHandle{h: sh.h, reg: sh.reg, r: r}
	}
	return out, nil
}

// NewResource starts a builder for a resource of this service.
func (sh *ServiceHandle) NewResource(name string) *ResourceBuilder {
	return &ResourceBuilder{h: sh.h.Derive(), reg: sh.reg, s: sh.s, spec: twin.ResourceSpec{Name: name}}
}

// Remove deletes the service.
func (sh *ServiceHandle) Remove(ctx context.Context) error {
	if err := sh.check(ctx); err != nil {
		return err
	}
	return sh.reg.RemoveService(sh.s.Provider(), sh.s.Name())
}

// ResourceHandle is a command-scoped reference to one resource.
type ResourceHandle struct {
	h   *scope.Handle
	reg *twin.Registry
	r   *twin.Resource
}

// ResourceInfo describes a resource.
type ResourceInfo struct {
	Name           string
	Kind           twin.Kind
	Access         twin.AccessMode
	UpdateMode     twin.UpdateMode
	CacheThreshold time.Duration
}

// Name returns the resource name.
func (rh *ResourceHandle) Name() string { return rh.r.Name() }

func (rh *ResourceHandle) check(ctx context.Context) error {
	if err := rh.h.CheckValid(ctx); err != nil {
		return err
	}
	s := rh.r.Service()
	cur, err := rh.reg.Lookup(s.Provider().Name(), s.Name(), rh.r.Name())
	if err != nil || cur != rh.r {
		return fmt.Errorf("%w: %s/%s/%s", twin.ErrResourceNotFound, s.Provider().Name(), s.Name(), rh.r.Name())
	}
	return nil
}

// Describe returns the resource declaration.
func (rh *ResourceHandle) Describe(ctx context.Context) (ResourceInfo, error) {
	if err := rh.check(ctx); err != nil {
		return ResourceInfo{}, err
	}
	return ResourceInfo{
		Name:           rh.r.Name(),
		Kind:           rh.r.Kind(),
		Access:         rh.r.Access(),
		UpdateMode:     rh.r.UpdateMode(),
		CacheThreshold: rh.r.CacheThreshold(),
	}, nil
}

// Value returns the cached value. Write-only resources fail with
// twin.ErrNotReadable.
func (rh *ResourceHandle) Value(ctx context.Context) (twin.TimedValue, error) {
	if err := rh.check(ctx); err != nil {
		return twin.TimedValue{}, err
	}
	if !rh.r.Access().Readable() {
		return twin.TimedValue{}, fmt.Errorf("%w: %s", twin.ErrNotReadable, rh.r.Name())
	}
	return rh.r.Value(), nil
}

// SetValue is the northbound write path. Read-only resources fail with
// twin.ErrNotWritable. A zero ts means now.
func (rh *ResourceHandle) SetValue(ctx context.Context, value any, ts time.Time) (bool, error) {
	if err := rh.check(ctx); err != nil {
		return false, err
	}
	if !rh.r.Access().Writable() {
		return false, fmt.Errorf("%w: %s", twin.ErrNotWritable, rh.r.Name())
	}
	v, err := twin.Convert(value, rh.r.Kind())
	if err != nil {
		return false, err
	}
	_, _, changed, err := rh.reg.ApplyValueUpdate(rh.r, v, ts)
	return changed, err
}

// Metadata returns a copy of the metadata entries.
func (rh *ResourceHandle) Metadata(ctx context.Context) (map[string]twin.MetaValue, error) {
	if err := rh.check(ctx); err != nil {
		return nil, err
	}
	return rh.r.Metadata(), nil
}

// SetMetadata stores a single metadata entry.
func (rh *ResourceHandle) SetMetadata(ctx context.Context, key string, value any, ts time.Time) error {
	_, err := rh.UpdateMetadata(ctx, map[string]any{key: value}, ts, false, false)
	return err
}

// UpdateMetadata merges changes; see twin.Registry.ApplyMetadataUpdate.
func (rh *ResourceHandle) UpdateMetadata(ctx context.Context, changes map[string]any, ts time.Time, removeNulls, removeMissing bool) (bool, error) {
	if err := rh.check(ctx); err != nil {
		return false, err
	}
	_, _, changed, err := rh.reg.ApplyMetadataUpdate(rh.r, changes, ts, removeNulls, removeMissing)
	return changed, err
}

// Remove deletes the resource.
func (rh *ResourceHandle) Remove(ctx context.Context) error {
	if err := rh.check(ctx); err != nil {
		return err
	}
	return rh.reg.RemoveResource(rh.r.Service(), rh.r.Name())
}
