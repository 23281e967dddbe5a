// Package files defines the remote file store used for record attachments.
package files

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// File is a pending upload selected on a draft.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// Size returns the number of bytes in the file.
func (f File) Size() int { return len(f.Data) }

// Store uploads, resolves and deletes attachment objects.
type Store interface {
	// Upload writes f at objectPath and returns a reference to the stored object.
	Upload(ctx context.Context, objectPath string, f File) (string, error)

	// PublicURL resolves a stored reference to a fetchable URL.
	PublicURL(ctx context.Context, ref string) (string, error)

	// Delete removes the object named by a URL or reference. Missing objects
	// report ErrNotFound.
	Delete(ctx context.Context, urlOrRef string) error

	// Origin is the prefix every URL returned by PublicURL starts with.
	Origin() string
}

// ObjectPath builds the storage path for a file selected on a record of the
// given folder. Only the base name of the original file is kept, so two files
// with the same name share one object.
func ObjectPath(folder, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "upload"
	}
	return folder + "/" + name
}

// RefFromURL strips origin from a URL and unescapes the remainder, returning
// the object path. Values that do not start with origin are returned unchanged.
func RefFromURL(origin, urlOrRef string) string {
	if origin == "" || !strings.HasPrefix(urlOrRef, origin) {
		return urlOrRef
	}
	ref := strings.TrimPrefix(urlOrRef, origin)
	if unescaped, err := url.PathUnescape(ref); err == nil {
		return unescaped
	}
	return ref
}

// EscapePath escapes each segment of an object path for use in a URL.
func EscapePath(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
