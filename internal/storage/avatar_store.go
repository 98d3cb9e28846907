// Package storage holds profile pictures and resolves legacy attachment files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a reference points at nothing.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// AvatarStore keeps profile pictures. The returned ref is what the identity
// store persists.
type AvatarStore interface {
	Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, ref string) error
}

// avatarKey builds avatars/<user>/<random><ext>. Only the extension of the
// client file name survives.
func avatarKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return fmt.Sprintf("avatars/%s/%s%s", userID, uuid.NewString(), ext)
}

// validRef rejects references that could escape the store's namespace.
func validRef(ref string) bool {
	if !strings.HasPrefix(ref, "avatars/") {
		return false
	}
	clean := path.Clean(ref)
	return clean == ref && !strings.Contains(ref, "..")
}
