package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FileStore persists each snapshot as a YAML document under Root, at
// "<Root>/<identifier>.yaml". The ETag is a content hash of the snapshot.
type FileStore[T any] struct {
	Root string
	now  func() time.Time
}

type fileRecord[T any] struct {
	Meta     Meta `yaml:"meta"`
	Snapshot T    `yaml:"snapshot"`
}

func NewFileStore[T any](root string) *FileStore[T] {
	return &FileStore[T]{Root: root, now: time.Now}
}

// Path returns the file backing ref.
func (s *FileStore[T]) Path(ref Ref) (string, error) {
	key, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)+".yaml"), nil
}

func (s *FileStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, Meta{}, false, err
	}
	path, err := s.Path(ref)
	if err != nil {
		return zero, Meta{}, false, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: read %s: %w", path, err)
	}
	var record fileRecord[T]
	if err := yaml.Unmarshal(raw, &record); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %s: %w", path, err)
	}
	return record.Snapshot, record.Meta, true, nil
}

func (s *FileStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	path, err := s.Path(ref)
	if err != nil {
		return Meta{}, err
	}
	if meta.ETag != "" {
		_, current, ok, err := s.Load(ctx, ref)
		if err != nil {
			return Meta{}, err
		}
		if ok && current.ETag != meta.ETag {
			return current, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, current.ETag)
		}
	}

	body, err := yaml.Marshal(snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode snapshot: %w", err)
	}
	sum := sha256.Sum256(body)

	saved := cloneMeta(meta)
	saved.SnapshotID = uuid.NewString()
	saved.ETag = hex.EncodeToString(sum[:8])
	saved.UpdatedAt = s.now().UTC()

	raw, err := yaml.Marshal(fileRecord[T]{Meta: saved, Snapshot: snapshot})
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode record: %w", err)
	}
	if err := writeFileAtomic(path, raw); err != nil {
		return Meta{}, fmt.Errorf("state: write %s: %w", path, err)
	}
	return saved, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
