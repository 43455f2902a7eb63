package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/scope"
	"github.com/nerrad567/gray-twin/internal/snapshot"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// ProviderInfo describes a provider and its services.
type ProviderInfo struct {
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	PackageURI string    `json:"package_uri,omitempty"`
	Created    time.Time `json:"created"`
	LastUpdate time.Time `json:"last_update"`
	Services   []string  `json:"services"`
}

// ServiceInfo describes a service and its resources.
type ServiceInfo struct {
	Provider  string   `json:"provider"`
	Name      string   `json:"name"`
	Resources []string `json:"resources"`
}

// Session is one northbound client's view of the twin.
//
// A session belongs to the execution context it was opened in: every
// operation must be called with that context (or one derived from it) and
// fails with scope.ErrCrossContextAccess otherwise. After Close every
// operation fails with scope.ErrInvalidState and the session's
// subscriptions are closed.
type Session struct {
	id      string
	user    string
	created time.Time
	handle  *scope.Handle

	gw     *gateway.Gateway
	snaps  *snapshot.Builder
	router *notify.Router

	mu   sync.Mutex
	subs []*notify.Subscription

	onClose func(*Session)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// User returns the name the session was opened for.
func (s *Session) User() string { return s.user }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// Active reports whether the session is still open.
func (s *Session) Active() bool { return s.handle.Active() }

// Close ends the session. It is idempotent.
func (s *Session) Close() {
	if !s.handle.Invalidate() {
		return
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	if s.onClose != nil {
		s.onClose(s)
	}
}

// Providers lists provider names.
func (s *Session) Providers(ctx context.Context) ([]string, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return nil, err
	}
	return gateway.Execute(ctx, s.gw, "session-providers", func(ctx context.Context, tx *gateway.Tx) ([]string, error) {
		var out []string
		for _, p := range tx.Registry().Providers() {
			out = append(out, p.Name())
		}
		return out, nil
	}).Wait(ctx)
}

// DescribeProvider returns the provider's identity and service names.
func (s *Session) DescribeProvider(ctx context.Context, provider string) (ProviderInfo, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return ProviderInfo{}, err
	}
	return gateway.Execute(ctx, s.gw, "session-describe-provider", func(ctx context.Context, tx *gateway.Tx) (ProviderInfo, error) {
		p, err := tx.Registry().Provider(provider)
		if err != nil {
			return ProviderInfo{}, err
		}
		info := ProviderInfo{
			Name:       p.Name(),
			Model:      p.Model(),
			PackageURI: p.PackageURI(),
			Created:    p.Created(),
			LastUpdate: p.LastUpdate(),
		}
		for _, svc := range p.Services() {
			info.Services = append(info.Services, svc.Name())
		}
		return info, nil
	}).Wait(ctx)
}

// DescribeService returns the service's resource names.
func (s *Session) DescribeService(ctx context.Context, provider, service string) (ServiceInfo, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return ServiceInfo{}, err
	}
	return gateway.Execute(ctx, s.gw, "session-describe-service", func(ctx context.Context, tx *gateway.Tx) (ServiceInfo, error) {
		p, err := tx.Twin().Provider(ctx, provider)
		if err != nil {
			return ServiceInfo{}, err
		}
		sh, err := p.Service(ctx, service)
		if err != nil {
			return ServiceInfo{}, err
		}
		rs, err := sh.Resources(ctx)
		if err != nil {
			return ServiceInfo{}, err
		}
		info := ServiceInfo{Provider: provider, Name: service}
		for _, r := range rs {
			info.Resources = append(info.Resources, r.Name())
		}
		return info, nil
	}).Wait(ctx)
}

// DescribeResource returns the resource declaration.
func (s *Session) DescribeResource(ctx context.Context, provider, service, resource string) (gateway.ResourceInfo, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return gateway.ResourceInfo{}, err
	}
	return gateway.Execute(ctx, s.gw, "session-describe-resource", func(ctx context.Context, tx *gateway.Tx) (gateway.ResourceInfo, error) {
		rh, err := lookupResource(ctx, tx, provider, service, resource)
		if err != nil {
			return gateway.ResourceInfo{}, err
		}
		return rh.Describe(ctx)
	}).Wait(ctx)
}

// ResourceValue reads one resource at the given level. Write-only
// resources fail with twin.ErrNotReadable. A pull failure is reported in
// the snapshot's PullError, not as an error.
func (s *Session) ResourceValue(ctx context.Context, provider, service, resource string, level snapshot.GetLevel) (snapshot.ResourceSnapshot, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return snapshot.ResourceSnapshot{}, err
	}
	rs, err := s.snaps.CaptureResource(ctx, provider, service, resource, level)
	if err != nil {
		return snapshot.ResourceSnapshot{}, err
	}
	if !rs.Access.Readable() {
		return snapshot.ResourceSnapshot{}, fmt.Errorf("%w: %s/%s/%s", twin.ErrNotReadable, provider, service, resource)
	}
	return rs, nil
}

// SetResourceValue writes a value from the northbound side. The resource
// must exist and be writable. A zero ts means now.
func (s *Session) SetResourceValue(ctx context.Context, provider, service, resource string, value any, ts time.Time) (bool, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return false, err
	}
	return gateway.Execute(ctx, s.gw, "session-set-value", func(ctx context.Context, tx *gateway.Tx) (bool, error) {
		rh, err := lookupResource(ctx, tx, provider, service, resource)
		if err != nil {
			return false, err
		}
		return rh.SetValue(ctx, value, ts)
	}).Wait(ctx)
}

// SetResourceMetadata merges metadata changes into an existing resource.
func (s *Session) SetResourceMetadata(ctx context.Context, provider, service, resource string, changes map[string]any, ts time.Time) (bool, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return false, err
	}
	return gateway.Execute(ctx, s.gw, "session-set-metadata", func(ctx context.Context, tx *gateway.Tx) (bool, error) {
		rh, err := lookupResource(ctx, tx, provider, service, resource)
		if err != nil {
			return false, err
		}
		return rh.UpdateMetadata(ctx, changes, ts, false, false)
	}).Wait(ctx)
}

// Filter captures every provider selected by c.
func (s *Session) Filter(ctx context.Context, c snapshot.Criterion, level snapshot.GetLevel) ([]snapshot.ProviderSnapshot, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return nil, err
	}
	return s.snaps.CaptureAll(ctx, c, level)
}

// RemoveProvider deletes a provider and everything under it.
func (s *Session) RemoveProvider(ctx context.Context, provider string) error {
	if err := s.handle.CheckValid(ctx); err != nil {
		return err
	}
	_, err := gateway.Execute(ctx, s.gw, "session-remove-provider", func(ctx context.Context, tx *gateway.Tx) (struct{}, error) {
		return struct{}{}, tx.Twin().RemoveProvider(ctx, provider)
	}).Wait(ctx)
	return err
}

// Subscribe registers l for topics matching patterns. The subscription
// ends when the session closes.
func (s *Session) Subscribe(ctx context.Context, patterns []string, l notify.Listener) (*notify.Subscription, error) {
	if err := s.handle.CheckValid(ctx); err != nil {
		return nil, err
	}
	if s.router == nil {
		return nil, ErrNoRouter
	}
	sub, err := s.router.Subscribe(patterns, l)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.handle.Active() {
		sub.Close()
		return nil, scope.ErrInvalidState
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func lookupResource(ctx context.Context, tx *gateway.Tx, provider, service, name string) (*gateway.ResourceHandle, error) {
	p, err := tx.Twin().Provider(ctx, provider)
	if err != nil {
		return nil, err
	}
	sh, err := p.Service(ctx, service)
	if err != nil {
		return nil, err
	}
	return sh.Resource(ctx, name)
}

func newSession(ctx context.Context, user string, gw *gateway.Gateway, snaps *snapshot.Builder, router *notify.Router) (*Session, context.Context) {
	ctx = scope.NewContext(ctx)
	return &Session{
		id:      uuid.NewString(),
		user:    user,
		created: time.Now().UTC(),
		handle:  scope.NewHandle(ctx),
		gw:      gw,
		snaps:   snaps,
		router:  router,
	}, ctx
}
