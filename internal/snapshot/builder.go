package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// DefaultPullTimeout bounds one pull callback when none is configured.
const DefaultPullTimeout = 5 * time.Second

// Logger defines the logging interface used by the builder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Builder.
type Options struct {
	// PullTimeout bounds each pull callback.
	PullTimeout time.Duration
}

// Builder captures snapshots through a gateway. Each capture is one command,
// so it observes a single consistent state of the twin.
type Builder struct {
	gw     *gateway.Gateway
	opts   Options
	logger Logger
}

// NewBuilder creates a snapshot builder on top of gw.
func NewBuilder(gw *gateway.Gateway, opts Options) *Builder {
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = DefaultPullTimeout
	}
	return &Builder{gw: gw, opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger for the builder.
func (b *Builder) SetLogger(logger Logger) {
	b.logger = logger
}

// CaptureAll copies every provider selected by c. A nil criterion selects
// everything. Pull failures are reported per resource, never as an error.
func (b *Builder) CaptureAll(ctx context.Context, c Criterion, level GetLevel) ([]ProviderSnapshot, error) {
	return gateway.Execute(ctx, b.gw, "snapshot", func(ctx context.Context, tx *gateway.Tx) ([]ProviderSnapshot, error) {
		return b.capture(ctx, tx, c, level), nil
	}).Wait(ctx)
}

// CaptureProvider copies one provider in full.
func (b *Builder) CaptureProvider(ctx context.Context, name string, level GetLevel) (ProviderSnapshot, error) {
	return gateway.Execute(ctx, b.gw, "snapshot-provider", func(ctx context.Context, tx *gateway.Tx) (ProviderSnapshot, error) {
		if _, err := tx.Registry().Provider(name); err != nil {
			return ProviderSnapshot{}, err
		}
		out := b.capture(ctx, tx, Match(name, "", ""), level)
		if len(out) == 0 {
			return ProviderSnapshot{}, fmt.Errorf("%w: %s", twin.ErrProviderNotFound, name)
		}
		return out[0], nil
	}).Wait(ctx)
}

// CaptureResource copies one resource.
func (b *Builder) CaptureResource(ctx context.Context, provider, service, resource string, level GetLevel) (ResourceSnapshot, error) {
	return gateway.Execute(ctx, b.gw, "snapshot-resource", func(ctx context.Context, tx *gateway.Tx) (ResourceSnapshot, error) {
		res, err := tx.Registry().Lookup(provider, service, resource)
		if err != nil {
			return ResourceSnapshot{}, err
		}
		return b.copyResource(ctx, tx.Registry(), res, level), nil
	}).Wait(ctx)
}

// Capture runs a capture inside an existing command.
func (b *Builder) Capture(ctx context.Context, tx *gateway.Tx, c Criterion, level GetLevel) []ProviderSnapshot {
	return b.capture(ctx, tx, c, level)
}

func (b *Builder) capture(ctx context.Context, tx *gateway.Tx, c Criterion, level GetLevel) []ProviderSnapshot {
	if c == nil {
		c = All()
	}
	reg := tx.Registry()
	now := reg.Now()

	var out []ProviderSnapshot
	for _, p := range reg.Providers() {
		info := providerInfo(p)
		if !c.MatchProvider(info) {
			continue
		}

		var selected []*twin.Resource
		for _, s := range p.Services() {
			if !c.MatchService(info, s.Name()) {
				continue
			}
			for _, r := range s.Resources() {
				if c.MatchResource(info, s.Name(), r.Name()) {
					selected = append(selected, r)
				}
			}
		}
		if len(selected) == 0 {
			continue
		}

		// Pull before the value predicate so it sees fresh values.
		pullErrs := make(map[*twin.Resource]error)
		for _, r := range selected {
			if err := b.refresh(ctx, reg, r, level); err != nil {
				pullErrs[r] = err
			}
		}

		if !c.MatchValues(info, liveValues{p}) {
			continue
		}

		ps := ProviderSnapshot{
			Name:       p.Name(),
			Model:      p.Model(),
			PackageURI: p.PackageURI(),
			Created:    p.Created(),
			LastUpdate: p.LastUpdate(),
			Location:   info.Location,
			CapturedAt: now,
		}
		for _, r := range selected {
			rs := snapshotResource(r)
			rs.PullError = pullErrs[r]
			appendResource(&ps, r.Service().Name(), rs)
		}
		out = append(out, ps)
	}
	return out
}

func (b *Builder) copyResource(ctx context.Context, reg *twin.Registry, r *twin.Resource, level GetLevel) ResourceSnapshot {
	err := b.refresh(ctx, reg, r, level)
	rs := snapshotResource(r)
	rs.PullError = err
	return rs
}

// refresh pulls r when level asks for it and applies the result.
func (b *Builder) refresh(ctx context.Context, reg *twin.Registry, r *twin.Resource, level GetLevel) error {
	if !needsPull(reg, r, level) {
		return nil
	}

	ref := r.Ref()
	wrap := func(err error) error {
		return &twin.PullError{Provider: ref.Provider, Service: ref.Service, Resource: ref.Resource, Err: err}
	}

	tv, err := pull(ctx, r.Pull(), b.opts.PullTimeout)
	if err != nil {
		b.logger.Warn("pull failed",
			"provider", ref.Provider, "service", ref.Service, "resource", ref.Resource, "error", err)
		return wrap(err)
	}
	ts := tv.Timestamp
	if ts.IsZero() {
		ts = reg.Now()
	}
	if _, _, _, err := reg.ApplyValueUpdate(r, tv.Value, ts); err != nil {
		return wrap(err)
	}
	return nil
}

func needsPull(reg *twin.Registry, r *twin.Resource, level GetLevel) bool {
	if r.UpdateMode() != twin.Pulled || r.Pull() == nil || !r.Access().Readable() {
		return false
	}
	switch level {
	case Weak:
		return false
	case Hard:
		return true
	}

	current := r.Value()
	if current.IsZero() {
		return true
	}
	threshold := r.CacheThreshold()
	if threshold <= 0 {
		threshold = reg.CacheThreshold()
	}
	if threshold <= 0 {
		return true
	}
	return reg.Now().Sub(current.Timestamp) > threshold
}

// pull calls fn with a deadline. A callback that overruns is abandoned.
func pull(ctx context.Context, fn twin.PullFunc, timeout time.Duration) (twin.TimedValue, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		tv  twin.TimedValue
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("pull panicked: %v", rec)}
			}
		}()
		tv, err := fn(ctx)
		ch <- result{tv, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return twin.TimedValue{}, ErrPullTimeout
		}
		return res.tv, res.err
	case <-ctx.Done():
		return twin.TimedValue{}, ErrPullTimeout
	}
}

func providerInfo(p *twin.Provider) ProviderInfo {
	info := ProviderInfo{Name: p.Name(), Model: p.Model(), PackageURI: p.PackageURI()}
	if loc, ok := p.Location(); ok {
		info.Location = &loc
	}
	return info
}

func snapshotResource(r *twin.Resource) ResourceSnapshot {
	rs := ResourceSnapshot{
		Name:       r.Name(),
		Kind:       r.Kind(),
		Access:     r.Access(),
		UpdateMode: r.UpdateMode(),
		Metadata:   r.Metadata(),
	}
	if r.Access().Readable() {
		rs.Value = r.Value()
	}
	return rs
}

func appendResource(ps *ProviderSnapshot, service string, rs ResourceSnapshot) {
	if s := ps.Service(service); s != nil {
		s.Resources = append(s.Resources, rs)
		return
	}
	ps.Services = append(ps.Services, ServiceSnapshot{Name: service, Resources: []ResourceSnapshot{rs}})
}

// liveValues exposes a provider's current values to value predicates.
type liveValues struct{ p *twin.Provider }

func (v liveValues) Value(service, resource string) (twin.TimedValue, bool) {
	s := v.p.Service(service)
	if s == nil {
		return twin.TimedValue{}, false
	}
	r := s.Resource(resource)
	if r == nil || !r.Access().Readable() {
		return twin.TimedValue{}, false
	}
	return r.Value(), true
}

func (v liveValues) Paths() []Path {
	var out []Path
	for _, s := range v.p.Services() {
		for _, r := range s.Resources() {
			out = append(out, Path{Service: s.Name(), Resource: r.Name()})
		}
	}
	return out
}
