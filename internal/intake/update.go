package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/twin"
)

// Update is one southbound change record.
type Update interface {
	// Target returns the model hint and resource path the update addresses.
	Target() (hint twin.ModelHint, provider, service, resource string)

	// Validate checks the record without touching the twin.
	Validate() error

	apply(ctx context.Context, tw *gateway.Twin) (bool, error)
}

// ValueUpdate sets the value of one resource.
type ValueUpdate struct {
	ModelPackageURI string
	Model           string
	Provider        string
	Service         string
	Resource        string

	// Timestamp of the observation. Zero means now.
	Timestamp time.Time

	Value any

	// Type optionally declares the resource kind ("int", "float", ...).
	Type string

	// Source is the raw payload the update was extracted from. It is kept
	// for adapters and never interpreted.
	Source any
}

// Target implements Update.
func (u ValueUpdate) Target() (twin.ModelHint, string, string, string) {
	return twin.ModelHint{PackageURI: u.ModelPackageURI, Model: u.Model}, u.Provider, u.Service, u.Resource
}

// Validate implements Update.
func (u ValueUpdate) Validate() error {
	if err := checkPath(u.Provider, u.Service, u.Resource); err != nil {
		return err
	}
	if _, err := twin.ParseKind(u.Type); err != nil {
		return err
	}
	return nil
}

func (u ValueUpdate) apply(ctx context.Context, tw *gateway.Twin) (bool, error) {
	kind, err := twin.ParseKind(u.Type)
	if err != nil {
		return false, err
	}
	hint, p, s, r := u.Target()
	return tw.UpdateValue(ctx, hint, p, s, r, u.Value, kind, u.Timestamp)
}

// MetadataUpdate changes the metadata of one resource.
type MetadataUpdate struct {
	ModelPackageURI string
	Model           string
	Provider        string
	Service         string
	Resource        string
	Timestamp       time.Time

	Metadata map[string]any

	// RemoveNullValues deletes keys mapped to nil instead of storing null.
	RemoveNullValues bool
	// RemoveMissingValues deletes existing keys absent from Metadata.
	RemoveMissingValues bool

	Source any
}

// Target implements Update.
func (u MetadataUpdate) Target() (twin.ModelHint, string, string, string) {
	return twin.ModelHint{PackageURI: u.ModelPackageURI, Model: u.Model}, u.Provider, u.Service, u.Resource
}

// Validate implements Update.
func (u MetadataUpdate) Validate() error {
	return checkPath(u.Provider, u.Service, u.Resource)
}

func (u MetadataUpdate) apply(ctx context.Context, tw *gateway.Twin) (bool, error) {
	hint, p, s, r := u.Target()
	return tw.UpdateMetadata(ctx, hint, p, s, r, u.Metadata, u.Timestamp, u.RemoveNullValues, u.RemoveMissingValues)
}

func checkPath(provider, service, resource string) error {
	switch {
	case provider == "":
		return fmt.Errorf("%w: provider", ErrMissingField)
	case service == "":
		return fmt.Errorf("%w: service", ErrMissingField)
	case resource == "":
		return fmt.Errorf("%w: resource", ErrMissingField)
	}
	return nil
}
