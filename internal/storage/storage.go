// Package storage defines the upload target for published artifacts.
// Implementations live in the local, gcs, and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore uploads one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// JoinPath prefixes name with prefix using "/" separators, ignoring empty
// segments.
func JoinPath(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return prefix + "/" + name
}
