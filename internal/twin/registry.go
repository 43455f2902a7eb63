package twin

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/nerrad567/gray-twin/internal/notify"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Registry.
type Options struct {
	// AutoDelete is the auto-delete flag given to implicitly created
	// providers.
	AutoDelete bool

	// CacheThreshold is the freshness window for cached reads of pulled
	// resources without their own threshold.
	CacheThreshold time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Registry is the single authoritative map of providers.
//
// The registry is not safe for concurrent use. It is owned by the gateway
// worker, which brackets every command with Begin and Commit or Rollback.
// Every mutation appends an undo step to the command's journal and records
// its notification into the command's accumulator.
type Registry struct {
	providers map[string]*Provider
	models    map[string]*Model
	opts      Options
	logger    Logger

	events  *notify.Accumulator
	journal []func()
	inTx    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		providers: make(map[string]*Provider),
		models:    make(map[string]*Model),
		opts:      opts,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// CacheThreshold returns the default freshness window for cached reads.
func (r *Registry) CacheThreshold() time.Duration { return r.opts.CacheThreshold }

// Now returns the registry clock.
func (r *Registry) Now() time.Time { return r.opts.Now().UTC() }

// Begin starts a command. Events are recorded into acc until Commit or
// Rollback.
func (r *Registry) Begin(acc *notify.Accumulator) {
	r.events = acc
	r.inTx = true
	r.resetJournal()
}

// Commit keeps every mutation since Begin.
func (r *Registry) Commit() {
	r.events = nil
	r.inTx = false
	r.resetJournal()
}

// Rollback undoes every mutation since Begin, newest first.
func (r *Registry) Rollback() {
	for i := len(r.journal) - 1; i >= 0; i-- {
		r.journal[i]()
	}
	if n := len(r.journal); n > 0 {
		r.logger.Debug("registry rolled back", "steps", n)
	}
	r.events = nil
	r.inTx = false
	r.resetJournal()
}

func (r *Registry) resetJournal() {
	clear(r.journal)
	r.journal = r.journal[:0]
}

// undo pushes a compensating step. Outside Begin mutations are final.
func (r *Registry) undo(fn func()) {
	if r.inTx {
		r.journal = append(r.journal, fn)
	}
}

// record forwards to the accumulator. Without Begin nothing is recorded.
func (r *Registry) record(fn func(a *notify.Accumulator) error) error {
	if r.events == nil {
		return nil
	}
	return fn(r.events)
}

// Provider returns the named provider.
func (r *Registry) Provider(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Providers returns every provider ordered by name.
func (r *Registry) Providers() []*Provider {
	names := slices.Sorted(maps.Keys(r.providers))
	out := make([]*Provider, len(names))
	for i, n := range names {
		out[i] = r.providers[n]
	}
	return out
}

// Len returns the number of providers.
func (r *Registry) Len() int { return len(r.providers) }

// Lookup resolves a resource path without creating anything.
func (r *Registry) Lookup(provider, service, resource string) (*Resource, error) {
	p, err := r.Provider(provider)
	if err != nil {
		return nil, err
	}
	s := p.Service(service)
	if s == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrServiceNotFound, provider, service)
	}
	res := s.Resource(resource)
	if res == nil {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrResourceNotFound, provider, service, resource)
	}
	return res, nil
}

// Model returns a copy of the named model.
func (r *Registry) Model(name string) (Model, bool) {
	m, ok := r.models[name]
	if !ok {
		return Model{}, false
	}
	return *m.clone(), true
}

// Models returns copies of every registered model ordered by name.
func (r *Registry) Models() []Model {
	names := slices.Sorted(maps.Keys(r.models))
	out := make([]Model, len(names))
	for i, n := range names {
		out[i] = *r.models[n].clone()
	}
	return out
}

// RegisterModel declares an explicit model. Registering an identical name
// with a different package URI fails with ErrModelConflict; re-registering
// an implicit model replaces it.
func (r *Registry) RegisterModel(m Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if prev, ok := r.models[m.Name]; ok {
		if prev.PackageURI != "" && prev.PackageURI != m.PackageURI {
			return fmt.Errorf("%w: model %s registered with package %q", ErrModelConflict, m.Name, prev.PackageURI)
		}
		if prev.Frozen || len(prev.Services) > 0 {
			return fmt.Errorf("%w: model %s already declared", ErrModelConflict, m.Name)
		}
	}
	prev, had := r.models[m.Name]
	r.models[m.Name] = m.clone()
	r.undo(func() {
		if had {
			r.models[m.Name] = prev
		} else {
			delete(r.models, m.Name)
		}
	})
	return nil
}

// ValidatePath checks that writing a value of kind to the given path would
// succeed, without creating anything.
func (r *Registry) ValidatePath(hint ModelHint, provider, service, resource string, kind Kind) error {
	for _, n := range []string{provider, service, resource} {
		if err := ValidateName(n); err != nil {
			return err
		}
	}

	var model *Model
	if p, ok := r.providers[provider]; ok {
		if err := checkHint(p, hint); err != nil {
			return err
		}
		model = r.models[p.model]
		if s := p.Service(service); s != nil {
			if res := s.Resource(resource); res != nil {
				if !res.kind.admits(kind) {
					return fmt.Errorf("%w: %s/%s/%s is %s, not %s", ErrTypeConflict, provider, service, resource, res.kind, kind)
				}
				return nil
			}
		}
	} else {
		model = r.models[r.modelName(provider, hint)]
	}

	if service == AdminService {
		return nil
	}
	if model != nil && model.Frozen {
		spec := model.resource(service, resource)
		if spec == nil {
			return fmt.Errorf("%w: %s/%s in model %s", ErrImplicitNotAllowed, service, resource, model.Name)
		}
		if !spec.Kind.admits(kind) {
			return fmt.Errorf("%w: %s/%s is %s, not %s", ErrTypeConflict, service, resource, spec.Kind, kind)
		}
	}
	return nil
}

func (r *Registry) modelName(provider string, hint ModelHint) string {
	if hint.Model != "" {
		return hint.Model
	}
	return derivedModelName(provider)
}

func checkHint(p *Provider, hint ModelHint) error {
	if hint.Model != "" && hint.Model != p.model {
		return fmt.Errorf("%w: provider %s has model %s, not %s", ErrModelConflict, p.name, p.model, hint.Model)
	}
	if hint.PackageURI != "" && hint.PackageURI != p.packageURI {
		return fmt.Errorf("%w: provider %s has package %q, not %q", ErrModelConflict, p.name, p.packageURI, hint.PackageURI)
	}
	return nil
}

// ResolveOrCreateProvider returns the named provider, creating it from the
// hinted model when unknown. A hint naming a different model than the
// existing provider's fails with ErrModelConflict.
func (r *Registry) ResolveOrCreateProvider(name string, hint ModelHint) (*Provider, error) {
	if p, ok := r.providers[name]; ok {
		if err := checkHint(p, hint); err != nil {
			return nil, err
		}
		return p, nil
	}
	return r.createProvider(name, hint, r.opts.AutoDelete)
}

// CreateProvider creates a provider explicitly. It fails with
// ErrProviderExists when the name is taken.
func (r *Registry) CreateProvider(name string, hint ModelHint, autoDelete bool) (*Provider, error) {
	if _, ok := r.providers[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	return r.createProvider(name, hint, autoDelete)
}

func (r *Registry) createProvider(name string, hint ModelHint, autoDelete bool) (*Provider, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	modelName := r.modelName(name, hint)
	model, ok := r.models[modelName]
	switch {
	case !ok:
		if err := r.RegisterModel(Model{Name: modelName, PackageURI: hint.PackageURI}); err != nil {
			return nil, err
		}
		model = r.models[modelName]
	case hint.PackageURI != "" && hint.PackageURI != model.PackageURI:
		return nil, fmt.Errorf("%w: model %s has package %q, not %q", ErrModelConflict, modelName, model.PackageURI, hint.PackageURI)
	}

	now := r.Now()
	p := &Provider{
		name:       name,
		model:      model.Name,
		packageURI: model.PackageURI,
		created:    now,
		lastUpdate: now,
		autoDelete: autoDelete,
		services:   make(map[string]*Service),
	}
	r.providers[name] = p
	r.undo(func() { delete(r.providers, name) })
	if err := r.record(func(a *notify.Accumulator) error { return a.ProviderCreated(p.Ref()) }); err != nil {
		return nil, err
	}

	admin, err := r.addService(p, AdminService)
	if err != nil {
		return nil, err
	}
	for _, ar := range adminResources {
		if _, err := r.addResource(admin, ResourceSpec{Name: ar.name, Kind: ar.kind, Access: Updatable}); err != nil {
			return nil, err
		}
	}
	if _, _, _, err := r.ApplyValueUpdate(admin.Resource(AdminModelName), String(model.Name), now); err != nil {
		return nil, err
	}

	for _, ss := range model.Services {
		svc, err := r.addService(p, ss.Name)
		if err != nil {
			return nil, err
		}
		for _, rs := range ss.Resources {
			if _, err := r.addResource(svc, rs); err != nil {
				return nil, err
			}
		}
	}

	r.logger.Debug("provider created", "provider", name, "model", model.Name)
	return p, nil
}

// ResolveOrCreateService returns the named service of p, creating it when
// the provider's model allows it.
func (r *Registry) ResolveOrCreateService(p *Provider, name string) (*Service, error) {
	if s := p.Service(name); s != nil {
		return s, nil
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if m := r.models[p.model]; m != nil && m.Frozen && m.service(name) == nil {
		return nil, fmt.Errorf("%w: service %s in model %s", ErrImplicitNotAllowed, name, m.Name)
	}
	return r.addService(p, name)
}

func (r *Registry) addService(p *Provider, name string) (*Service, error) {
	s := newService(name, p)
	prevOrder := p.order
	p.add(s)
	r.undo(func() {
		delete(p.services, name)
		p.order = prevOrder
	})
	if err := r.record(func(a *notify.Accumulator) error { return a.ServiceCreated(s.Ref()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// ResolveOrCreateResource returns the named resource of s, creating it when
// the model allows it. A non-None hint fixes the type of a new resource; a
// hint contradicting an existing fixed type fails with ErrTypeConflict.
func (r *Registry) ResolveOrCreateResource(s *Service, name string, hint Kind) (*Resource, error) {
	if res := s.Resource(name); res != nil {
		if !res.kind.admits(hint) {
			return nil, fmt.Errorf("%w: %s is %s, not %s", ErrTypeConflict, name, res.kind, hint)
		}
		return res, nil
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	spec := ResourceSpec{Name: name, Kind: hint, Access: Updatable, Update: Pushed}
	if m := r.models[s.provider.model]; m != nil && m.Frozen && s.name != AdminService {
		declared := m.resource(s.name, name)
		if declared == nil {
			return nil, fmt.Errorf("%w: resource %s/%s in model %s", ErrImplicitNotAllowed, s.name, name, m.Name)
		}
		spec = *declared
	}
	return r.addResource(s, spec)
}

// DefineResource creates a resource from spec or reconfigures an existing
// one. The kind of an existing resource can only be fixed, never changed.
// A frozen model only admits the resources it declares.
func (r *Registry) DefineResource(s *Service, spec ResourceSpec) (*Resource, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	res := s.Resource(spec.Name)
	if res == nil {
		if m := r.models[s.provider.model]; m != nil && m.Frozen && s.name != AdminService && m.resource(s.name, spec.Name) == nil {
			return nil, fmt.Errorf("%w: resource %s/%s in model %s", ErrImplicitNotAllowed, s.name, spec.Name, m.Name)
		}
		return r.addResource(s, spec)
	}
	if !res.kind.admits(spec.Kind) {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrTypeConflict, spec.Name, res.kind, spec.Kind)
	}

	prev := *res
	if spec.Kind != KindNone {
		res.kind = spec.Kind
	}
	if spec.Access != "" {
		res.access = spec.Access
	}
	if spec.Update != "" {
		res.update = spec.Update
	}
	res.pull = spec.Pull
	res.threshold = spec.CacheThreshold
	r.undo(func() { *res = prev })
	return res, nil
}

func (r *Registry) addResource(s *Service, spec ResourceSpec) (*Resource, error) {
	if spec.Access == "" {
		spec.Access = Updatable
	}
	if spec.Update == "" {
		spec.Update = Pushed
	}
	res := &Resource{
		name:      spec.Name,
		service:   s,
		kind:      spec.Kind,
		access:    spec.Access,
		update:    spec.Update,
		pull:      spec.Pull,
		threshold: spec.CacheThreshold,
		metadata:  make(map[string]MetaValue),
	}
	prevOrder := s.order
	s.add(res)
	r.undo(func() {
		delete(s.resources, res.name)
		s.order = prevOrder
	})
	if err := r.record(func(a *notify.Accumulator) error { return a.ResourceCreated(res.Ref()) }); err != nil {
		return nil, err
	}

	if spec.Default != nil {
		v, err := Convert(spec.Default, spec.Kind)
		if err != nil {
			return nil, err
		}
		if _, _, _, err := r.ApplyValueUpdate(res, v, r.Now()); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ApplyValueUpdate stores v observed at ts.
//
// An incompatible value fails with ErrTypeMismatch. The first non-null value
// fixes the resource kind. An update whose timestamp is not after the
// current one is skipped: changed is false, old equals new and no DATA event
// is recorded. A zero ts means now.
func (r *Registry) ApplyValueUpdate(res *Resource, v Value, ts time.Time) (old, updated TimedValue, changed bool, err error) {
	if ts.IsZero() {
		ts = r.Now()
	}
	if !res.kind.Accepts(v) {
		return res.value, res.value, false, fmt.Errorf("%w: %s/%s/%s is %s, got %s",
			ErrTypeMismatch, res.service.provider.name, res.service.name, res.name, res.kind, v.Kind())
	}
	if !res.value.IsZero() && !ts.After(res.value.Timestamp) {
		return res.value, res.value, false, nil
	}

	prevRes := *res
	prevUpdate := res.service.provider.lastUpdate
	r.undo(func() {
		res.kind = prevRes.kind
		res.value = prevRes.value
		res.service.provider.lastUpdate = prevUpdate
	})

	if res.kind == KindNone && !v.IsNull() {
		res.kind = v.Kind()
	}
	old = res.value
	res.value = TimedValue{Value: v.coerce(res.kind), Timestamp: ts}
	if ts.After(res.service.provider.lastUpdate) {
		res.service.provider.lastUpdate = ts
	}

	err = r.record(func(a *notify.Accumulator) error {
		return a.DataUpdate(res.Ref(), res.kind.String(), old.Value.Interface(), res.value.Value.Interface(), ts)
	})
	if err != nil {
		return old, old, false, err
	}
	return old, res.value, true, nil
}

// ApplyMetadataUpdate merges changes observed at ts into the metadata of res.
//
// With removeNulls, keys mapped to nil are deleted instead of stored as
// null. With removeMissing, existing keys absent from changes are deleted.
// Keys whose stored timestamp is after ts are left alone. One METADATA event
// carrying the full before and after maps is recorded when anything changed.
func (r *Registry) ApplyMetadataUpdate(res *Resource, changes map[string]any, ts time.Time, removeNulls, removeMissing bool) (old, updated map[string]any, changed bool, err error) {
	if ts.IsZero() {
		ts = r.Now()
	}
	old = plainMetadata(res.metadata)

	next := make(map[string]MetaValue, len(res.metadata)+len(changes))
	maps.Copy(next, res.metadata)
	for k, v := range changes {
		if cur, ok := next[k]; ok && cur.Timestamp.After(ts) {
			continue
		}
		if v == nil && removeNulls {
			delete(next, k)
			continue
		}
		next[k] = MetaValue{Value: deepCopyValue(v), Timestamp: ts}
	}
	if removeMissing {
		for k := range next {
			if _, ok := changes[k]; !ok {
				delete(next, k)
			}
		}
	}

	updated = plainMetadata(next)
	if reflect.DeepEqual(old, updated) {
		return old, old, false, nil
	}

	prev := res.metadata
	res.metadata = next
	r.undo(func() { res.metadata = prev })

	err = r.record(func(a *notify.Accumulator) error {
		return a.MetadataUpdate(res.Ref(), old, updated, ts)
	})
	if err != nil {
		return old, old, false, err
	}
	return old, updated, true, nil
}

// RemoveProvider deletes a provider and everything under it.
func (r *Registry) RemoveProvider(name string) error {
	p, err := r.Provider(name)
	if err != nil {
		return err
	}
	for _, s := range p.Services() {
		for _, res := range s.Resources() {
			if err := r.record(func(a *notify.Accumulator) error { return a.ResourceDeleted(res.Ref()) }); err != nil {
				return err
			}
		}
		if err := r.record(func(a *notify.Accumulator) error { return a.ServiceDeleted(s.Ref()) }); err != nil {
			return err
		}
	}

	delete(r.providers, name)
	r.undo(func() { r.providers[name] = p })
	r.logger.Debug("provider removed", "provider", name)
	return r.record(func(a *notify.Accumulator) error { return a.ProviderDeleted(p.Ref()) })
}

// RemoveService deletes a service and its resources. When the provider is
// auto-delete and this was its last user service, the provider goes too.
func (r *Registry) RemoveService(p *Provider, name string) error {
	if name == AdminService {
		return ErrAdminService
	}
	s := p.Service(name)
	if s == nil {
		return fmt.Errorf("%w: %s/%s", ErrServiceNotFound, p.name, name)
	}
	for _, res := range s.Resources() {
		if err := r.record(func(a *notify.Accumulator) error { return a.ResourceDeleted(res.Ref()) }); err != nil {
			return err
		}
	}

	prevOrder := p.order
	p.remove(name)
	r.undo(func() {
		p.services[name] = s
		p.order = prevOrder
	})
	if err := r.record(func(a *notify.Accumulator) error { return a.ServiceDeleted(s.Ref()) }); err != nil {
		return err
	}

	if p.autoDelete && p.userServices() == 0 {
		return r.RemoveProvider(p.name)
	}
	return nil
}

// RemoveResource deletes one resource. An emptied service of an
// auto-delete provider is pruned as well.
func (r *Registry) RemoveResource(s *Service, name string) error {
	if s.name == AdminService {
		return ErrAdminService
	}
	res := s.Resource(name)
	if res == nil {
		return fmt.Errorf("%w: %s/%s/%s", ErrResourceNotFound, s.provider.name, s.name, name)
	}

	prevOrder := s.order
	s.remove(name)
	r.undo(func() {
		s.resources[name] = res
		s.order = prevOrder
	})
	if err := r.record(func(a *notify.Accumulator) error { return a.ResourceDeleted(res.Ref()) }); err != nil {
		return err
	}

	if s.provider.autoDelete && len(s.order) == 0 {
		return r.RemoveService(s.provider, s.name)
	}
	return nil
}
