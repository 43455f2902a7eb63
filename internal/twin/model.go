package twin

import (
	"fmt"
	"strings"
	"time"
)

// Model declares the services and resources of a family of providers.
//
// Implicit models are created on first write and accept any element. A
// Frozen model rejects services and resources it does not declare.
type Model struct {
	Name       string
	PackageURI string
	Frozen     bool
	Services   []ServiceSpec
}

// ServiceSpec declares one service of a model.
type ServiceSpec struct {
	Name      string
	Resources []ResourceSpec
}

// ResourceSpec declares one resource.
type ResourceSpec struct {
	Name           string
	Kind           Kind
	Access         AccessMode
	Update         UpdateMode
	Pull           PullFunc
	CacheThreshold time.Duration
	// Default is stored as the initial value when non-nil.
	Default any
}

// ModelHint names the model a provider should use. The zero hint lets the
// registry derive a model name from the provider name.
type ModelHint struct {
	PackageURI string
	Model      string
}

// IsZero reports whether no model was requested.
func (h ModelHint) IsZero() bool { return h.Model == "" && h.PackageURI == "" }

// service returns the declared service, or nil.
func (m *Model) service(name string) *ServiceSpec {
	for i := range m.Services {
		if m.Services[i].Name == name {
			return &m.Services[i]
		}
	}
	return nil
}

// resource returns the declared resource, or nil.
func (m *Model) resource(service, name string) *ResourceSpec {
	s := m.service(service)
	if s == nil {
		return nil
	}
	for i := range s.Resources {
		if s.Resources[i].Name == name {
			return &s.Resources[i]
		}
	}
	return nil
}

// clone copies the declaration so callers cannot mutate registered models.
func (m *Model) clone() *Model {
	cpy := *m
	cpy.Services = make([]ServiceSpec, len(m.Services))
	for i, s := range m.Services {
		cpy.Services[i] = ServiceSpec{Name: s.Name, Resources: append([]ResourceSpec(nil), s.Resources...)}
	}
	return &cpy
}

// Validate checks names, kinds and modes of the declaration.
func (m *Model) Validate() error {
	if err := ValidateName(m.Name); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	seen := make(map[string]bool)
	for _, s := range m.Services {
		if err := ValidateName(s.Name); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
		if s.Name == AdminService {
			return fmt.Errorf("model %s: %w: admin is implicit", m.Name, ErrInvalidName)
		}
		if seen[s.Name] {
			return fmt.Errorf("model %s: %w: duplicate service %q", m.Name, ErrInvalidName, s.Name)
		}
		seen[s.Name] = true

		res := make(map[string]bool)
		for _, r := range s.Resources {
			if err := validateSpec(r); err != nil {
				return fmt.Errorf("model %s/%s: %w", m.Name, s.Name, err)
			}
			if res[r.Name] {
				return fmt.Errorf("model %s/%s: %w: duplicate resource %q", m.Name, s.Name, ErrInvalidName, r.Name)
			}
			res[r.Name] = true
		}
	}
	return nil
}

func validateSpec(r ResourceSpec) error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	switch r.Access {
	case "", ReadOnly, WriteOnly, Updatable:
	default:
		return fmt.Errorf("%w: access mode %q", ErrInvalidName, r.Access)
	}
	switch r.Update {
	case "", Pushed:
	case Pulled:
		if r.Pull == nil {
			return fmt.Errorf("%w: pulled resource %q has no pull function", ErrInvalidName, r.Name)
		}
	default:
		return fmt.Errorf("%w: update mode %q", ErrInvalidName, r.Update)
	}
	if r.Default != nil {
		v, err := Convert(r.Default, r.Kind)
		if err != nil {
			return err
		}
		if !r.Kind.Accepts(v) {
			return fmt.Errorf("%w: default for %q", ErrTypeMismatch, r.Name)
		}
	}
	return nil
}

// ValidateName checks a provider, service, resource or model name. Names
// become topic segments, so separators and wildcards are rejected.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/#*+") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	}
	return nil
}

// derivedModelName returns the implicit model name for a provider.
func derivedModelName(provider string) string {
	return provider
}
