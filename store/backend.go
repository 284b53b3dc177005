package store

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotExist reports a reachable but absent document or entry.
	ErrNotExist = errors.New("document does not exist")
	// ErrUnavailable reports a backend that cannot resolve or create its
	// target, e.g. a revoked scoped root.
	ErrUnavailable = errors.New("storage unavailable")
)

// Handle is an opaque document or directory identifier of the scoped
// backend.
type Handle string

// Location identifies a document. Path addresses the direct backend;
// Parent and Name address the scoped backend, with Handle filled in once
// the document has been resolved.
type Location struct {
	Path   string
	Parent Handle
	Name   string
	Handle Handle
}

func PathLocation(p string) Location {
	return Location{Path: p}
}

func DocLocation(parent Handle, name string) Location {
	return Location{Parent: parent, Name: name}
}

func (l Location) String() string {
	if l.Path != "" {
		return l.Path
	}
	if l.Handle != "" {
		return string(l.Parent) + "/" + l.Name + "@" + string(l.Handle)
	}
	return string(l.Parent) + "/" + l.Name
}

// Marker is an equality-only token for the content state of a document.
type Marker string

const (
	// NoMarker means nothing has been observed yet.
	NoMarker Marker = ""
	// MissingMarker is the marker of an absent document.
	MissingMarker Marker = "missing"
)

func markerOf(t time.Time) Marker {
	return Marker(strconv.FormatInt(t.UnixNano(), 10))
}

// Mode selects how Write treats existing content.
type Mode uint8

const (
	Truncate Mode = iota
	Append
)

// FileEntry is one item of a directory listing.
type FileEntry struct {
	Path  string
	IsDir bool
}

//go:generate stringer -type=BackendKind
type BackendKind uint8

const (
	DirectPath BackendKind = iota
	ScopedDocument
)

// Backend is one storage mechanism for the task documents.
type Backend interface {
	Kind() BackendKind
	// Read returns the whole document. An absent document reads as "".
	Read(ctx context.Context, loc Location) (string, error)
	Write(ctx context.Context, loc Location, content string, mode Mode) error
	// EnsureExists returns loc resolved to an existing document, creating
	// it with the mime hint when absent.
	EnsureExists(ctx context.Context, loc Location, mime string) (Location, error)
	List(ctx context.Context, dir string, txtOnly bool) ([]FileEntry, error)
	// LastModified returns ErrNotExist for an absent document.
	LastModified(ctx context.Context, loc Location) (Marker, error)
	// Default returns the location of a document named name in the
	// backend's default directory.
	Default(name string) Location
}
