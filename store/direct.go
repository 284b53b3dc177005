package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type directBackend struct {
	defaultDir string
}

// NewDirectBackend returns the filesystem path backend. defaultDir is
// where default documents live and is offered when listing "/".
func NewDirectBackend(defaultDir string) Backend {
	if abs, err := filepath.Abs(defaultDir); err == nil {
		defaultDir = abs
	}
	return &directBackend{defaultDir: defaultDir}
}

func (d *directBackend) Kind() BackendKind { return DirectPath }

func (d *directBackend) Default(name string) Location {
	return PathLocation(filepath.Join(d.defaultDir, name))
}

func (d *directBackend) Read(_ context.Context, loc Location) (string, error) {
	info, err := os.Stat(loc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", loc.Path, err)
	}
	// opening a fifo or device can block
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("read %s: not a regular file", loc.Path)
	}
	b, err := os.ReadFile(loc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", loc.Path, err)
	}
	return string(b), nil
}

func (d *directBackend) Write(_ context.Context, loc Location, content string, mode Mode) error {
	if mode == Append {
		f, err := os.OpenFile(loc.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("append %s: %w", loc.Path, err)
		}
		if _, err := f.WriteString(content); err != nil {
			_ = f.Close()
			return fmt.Errorf("append %s: %w", loc.Path, err)
		}
		return f.Close()
	}
	return replaceFile(linkTarget(loc.Path), content)
}

// linkTarget follows symlinks at path, including a dangling last link, so
// a replace updates the linked document instead of the link.
func linkTarget(path string) string {
	if p, err := filepath.EvalSymlinks(path); err == nil {
		return p
	}
	for i := 0; i < 40; i++ {
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&fs.ModeSymlink == 0 {
			return path
		}
		dest, err := os.Readlink(path)
		if err != nil {
			return path
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(path), dest)
		}
		path = dest
	}
	return path
}

// replaceFile writes content to a sibling temp file and renames it over
// path so readers never see a partially written document. path must not
// be a symlink.
func replaceFile(path, content string) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	name := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// EnsureExists is a no-op: files are created by Write.
func (d *directBackend) EnsureExists(_ context.Context, loc Location, _ string) (Location, error) {
	return loc, nil
}

func (d *directBackend) LastModified(_ context.Context, loc Location) (Marker, error) {
	info, err := os.Stat(loc.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NoMarker, ErrNotExist
	}
	if err != nil {
		return NoMarker, fmt.Errorf("stat %s: %w", loc.Path, err)
	}
	return markerOf(info.ModTime()), nil
}

func (d *directBackend) List(_ context.Context, dir string, txtOnly bool) ([]FileEntry, error) {
	dir = filepath.Clean(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	result := make([]FileEntry, 0, len(entries)+1)
	if dir == string(filepath.Separator) {
		result = append(result, FileEntry{Path: d.defaultDir, IsDir: true})
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		mode := e.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			mode = info.Mode().Type()
		}
		// fifos, sockets and devices are never documents
		if !mode.IsDir() && !mode.IsRegular() {
			continue
		}
		if !readable(path) {
			continue
		}
		if mode.IsDir() {
			result = append(result, FileEntry{Path: name, IsDir: true})
		} else if !txtOnly || strings.HasSuffix(strings.ToLower(name), ".txt") {
			result = append(result, FileEntry{Path: name})
		}
	}
	return result, nil
}
