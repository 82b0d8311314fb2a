package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies one persisted snapshot. Domain names the kind of data
// ("envflags"); Target names the project or document it belongs to.
type Ref struct {
	Domain string
	Target string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single ref.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
}

// Validator is implemented by snapshots that can check themselves before
// being saved.
type Validator interface {
	Validate() error
}

type Mutator[T any] func(*T) error

// Identifier returns the deterministic storage key for the ref, either
// "<domain>" or "<domain>/<target>".
func (r Ref) Identifier() (string, error) {
	domain := strings.TrimSpace(r.Domain)
	if domain == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidRef)
	}
	target := strings.TrimSpace(r.Target)
	if strings.ContainsAny(domain, `/\`) || strings.ContainsAny(target, `\`) || strings.Contains(target, "..") {
		return "", fmt.Errorf("%w: %q/%q contains path separators", ErrInvalidRef, r.Domain, r.Target)
	}
	if target == "" {
		return domain, nil
	}
	return domain + "/" + strings.Trim(target, "/"), nil
}

// Mutate loads one snapshot, applies fn, validates, then saves. A non-empty
// expected.ETag must match the stored ETag.
func Mutate[T any](ctx context.Context, store Store[T], ref Ref, expected Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, Meta{}, err
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.Domain, ref.Target, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if expected.ETag != "" && loadedMeta.ETag != "" && expected.ETag != loadedMeta.ETag {
		return zero, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}
	if v, ok := any(snapshot).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, loadedMeta, err
		}
	}

	savedMeta, err := store.Save(ctx, ref, snapshot, mergeMeta(loadedMeta, expected))
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %q/%q: %w", ref.Domain, ref.Target, err)
	}
	return snapshot, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
