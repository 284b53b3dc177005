package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// Resolver exposes the content stream primitives of a handle-addressed
// document provider.
type Resolver interface {
	// Find returns the child of parent called name, or ErrNotExist.
	Find(ctx context.Context, parent Handle, name string) (Handle, error)
	Create(ctx context.Context, parent Handle, name, mime string) (Handle, error)
	// OpenRead returns ErrNotExist when h does not exist.
	OpenRead(ctx context.Context, h Handle) (io.ReadCloser, error)
	// OpenWrite returns a writer whose content is committed on Close.
	OpenWrite(ctx context.Context, h Handle, mode Mode) (io.WriteCloser, error)
	// Modified returns ErrNotExist when h does not exist.
	Modified(ctx context.Context, h Handle) (time.Time, error)
}

type scopedBackend struct {
	resolver Resolver
	root     Handle
}

// NewScopedBackend returns the handle backend rooted at root. Locations
// with an empty Parent resolve against root.
func NewScopedBackend(resolver Resolver, root Handle) Backend {
	return &scopedBackend{resolver: resolver, root: root}
}

func (s *scopedBackend) Kind() BackendKind { return ScopedDocument }

func (s *scopedBackend) Default(name string) Location {
	return DocLocation(s.root, name)
}

func (s *scopedBackend) normalize(loc Location) (Location, error) {
	if loc.Parent == "" {
		loc.Parent = s.root
	}
	if loc.Name == "" && loc.Path != "" {
		loc.Name = filepath.Base(loc.Path)
	}
	if loc.Parent == "" || loc.Name == "" {
		return loc, fmt.Errorf("%w: no root or name for %q", ErrUnavailable, loc.String())
	}
	return loc, nil
}

// lookup resolves loc without creating anything.
func (s *scopedBackend) lookup(ctx context.Context, loc Location) (Location, error) {
	loc, err := s.normalize(loc)
	if err != nil {
		return loc, err
	}
	if loc.Handle != "" {
		return loc, nil
	}
	h, err := s.resolver.Find(ctx, loc.Parent, loc.Name)
	if err != nil {
		return loc, err
	}
	loc.Handle = h
	return loc, nil
}

func (s *scopedBackend) EnsureExists(ctx context.Context, loc Location, mime string) (Location, error) {
	found, err := s.lookup(ctx, loc)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, ErrNotExist) {
		return loc, err
	}
	h, err := s.resolver.Create(ctx, found.Parent, found.Name, mime)
	if err != nil {
		return loc, fmt.Errorf("create %s: %w", found.String(), err)
	}
	found.Handle = h
	return found, nil
}

func (s *scopedBackend) Read(ctx context.Context, loc Location) (string, error) {
	loc, err := s.lookup(ctx, loc)
	if errors.Is(err, ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	r, err := s.resolver.OpenRead(ctx, loc.Handle)
	if errors.Is(err, ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", loc.String(), err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", loc.String(), err)
	}
	return string(b), nil
}

func (s *scopedBackend) Write(ctx context.Context, loc Location, content string, mode Mode) error {
	loc, err := s.lookup(ctx, loc)
	if err != nil {
		return err
	}
	w, err := s.resolver.OpenWrite(ctx, loc.Handle, mode)
	if err != nil {
		return fmt.Errorf("open %s for write: %w", loc.String(), err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", loc.String(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", loc.String(), err)
	}
	return nil
}

// List is unsupported: scoped documents are addressed by handle, not
// browsed by path.
func (s *scopedBackend) List(context.Context, string, bool) ([]FileEntry, error) {
	return []FileEntry{}, nil
}

func (s *scopedBackend) LastModified(ctx context.Context, loc Location) (Marker, error) {
	loc, err := s.lookup(ctx, loc)
	if err != nil {
		return NoMarker, err
	}
	t, err := s.resolver.Modified(ctx, loc.Handle)
	if err != nil {
		return NoMarker, err
	}
	return markerOf(t), nil
}
