package snapshot

import (
	"math"

	"github.com/nerrad567/gray-twin/internal/twin"
)

// ProviderInfo is the identity of a provider as seen by a Criterion.
type ProviderInfo struct {
	Name       string
	Model      string
	PackageURI string
	Location   *twin.GeoPoint
}

// Path names a resource within a provider.
type Path struct {
	Service  string
	Resource string
}

// Values gives a Criterion read access to a provider's current resources
// while capture runs. It must not be retained.
type Values interface {
	Value(service, resource string) (twin.TimedValue, bool)
	Paths() []Path
}

// Criterion selects what a capture copies. The walk asks MatchProvider,
// then MatchService and MatchResource for each child, and finally
// MatchValues for providers with at least one selected resource. Branches
// rejected early are never copied.
type Criterion interface {
	MatchProvider(p ProviderInfo) bool
	MatchService(p ProviderInfo, service string) bool
	MatchResource(p ProviderInfo, service, resource string) bool
	MatchValues(p ProviderInfo, v Values) bool
}

// Filter is a Criterion built from optional predicates. A nil predicate
// accepts everything.
type Filter struct {
	Provider func(p ProviderInfo) bool
	Service  func(p ProviderInfo, service string) bool
	Resource func(p ProviderInfo, service, resource string) bool
	Values   func(p ProviderInfo, v Values) bool
}

// MatchProvider implements Criterion.
func (f Filter) MatchProvider(p ProviderInfo) bool {
	return f.Provider == nil || f.Provider(p)
}

// MatchService implements Criterion.
func (f Filter) MatchService(p ProviderInfo, service string) bool {
	return f.Service == nil || f.Service(p, service)
}

// MatchResource implements Criterion.
func (f Filter) MatchResource(p ProviderInfo, service, resource string) bool {
	return f.Resource == nil || f.Resource(p, service, resource)
}

// MatchValues implements Criterion.
func (f Filter) MatchValues(p ProviderInfo, v Values) bool {
	return f.Values == nil || f.Values(p, v)
}

// All selects everything.
func All() Criterion { return Filter{} }

// Match selects by identity. Empty names match anything.
//
//	snapshot.Match("sensor1", "env", "")   // every resource of sensor1/env
func Match(provider, service, resource string) Criterion {
	f := Filter{}
	if provider != "" {
		f.Provider = func(p ProviderInfo) bool { return p.Name == provider }
	}
	if service != "" {
		f.Service = func(_ ProviderInfo, s string) bool { return s == service }
	}
	if resource != "" {
		f.Resource = func(_ ProviderInfo, _, r string) bool { return r == resource }
	}
	return f
}

// ModelIs selects providers of one model.
func ModelIs(model string) Criterion {
	return Filter{Provider: func(p ProviderInfo) bool { return p.Model == model }}
}

// ValueMatches selects providers whose service/resource value satisfies
// pred. Providers without that resource are rejected.
func ValueMatches(service, resource string, pred func(twin.TimedValue) bool) Criterion {
	return Filter{Values: func(_ ProviderInfo, v Values) bool {
		tv, ok := v.Value(service, resource)
		return ok && pred(tv)
	}}
}

// Near selects providers whose admin location lies within radius metres of
// center.
func Near(center twin.GeoPoint, radius float64) Criterion {
	return Filter{Provider: func(p ProviderInfo) bool {
		return p.Location != nil && Distance(center, *p.Location) <= radius
	}}
}

const earthRadius = 6371008.8 // metres

// Distance returns the great-circle distance in metres between two points.
func Distance(a, b twin.GeoPoint) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

type and []Criterion

// And selects what every criterion selects.
func And(cs ...Criterion) Criterion { return and(cs) }

func (a and) MatchProvider(p ProviderInfo) bool {
	for _, c := range a {
		if !c.MatchProvider(p) {
			return false
		}
	}
	return true
}

func (a and) MatchService(p ProviderInfo, s string) bool {
	for _, c := range a {
		if !c.MatchService(p, s) {
			return false
		}
	}
	return true
}

func (a and) MatchResource(p ProviderInfo, s, r string) bool {
	for _, c := range a {
		if !c.MatchResource(p, s, r) {
			return false
		}
	}
	return true
}

func (a and) MatchValues(p ProviderInfo, v Values) bool {
	for _, c := range a {
		if !c.MatchValues(p, v) {
			return false
		}
	}
	return true
}

type or []Criterion

// Or selects what any criterion selects. At each level only the
// alternatives that accepted the enclosing level are consulted.
func Or(cs ...Criterion) Criterion { return or(cs) }

func (o or) MatchProvider(p ProviderInfo) bool {
	for _, c := range o {
		if c.MatchProvider(p) {
			return true
		}
	}
	return false
}

func (o or) MatchService(p ProviderInfo, s string) bool {
	for _, c := range o {
		if c.MatchProvider(p) && c.MatchService(p, s) {
			return true
		}
	}
	return false
}

func (o or) MatchResource(p ProviderInfo, s, r string) bool {
	for _, c := range o {
		if c.MatchProvider(p) && c.MatchService(p, s) && c.MatchResource(p, s, r) {
			return true
		}
	}
	return false
}

func (o or) MatchValues(p ProviderInfo, v Values) bool {
	for _, c := range o {
		if selects(c, p, v) {
			return true
		}
	}
	return false
}

type not struct{ c Criterion }

// Not negates at provider level: it selects, in full, every provider of
// which c would copy nothing.
func Not(c Criterion) Criterion { return not{c} }

func (not) MatchProvider(ProviderInfo) bool                 { return true }
func (not) MatchService(ProviderInfo, string) bool          { return true }
func (not) MatchResource(ProviderInfo, string, string) bool { return true }

func (n not) MatchValues(p ProviderInfo, v Values) bool {
	return !selects(n.c, p, v)
}

// selects reports whether c alone would copy any part of the provider.
func selects(c Criterion, p ProviderInfo, v Values) bool {
	if !c.MatchProvider(p) {
		return false
	}
	for _, path := range v.Paths() {
		if c.MatchService(p, path.Service) && c.MatchResource(p, path.Service, path.Resource) {
			return c.MatchValues(p, v)
		}
	}
	return false
}
