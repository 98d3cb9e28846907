package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalAvatarStore keeps avatars under a directory on disk.
type LocalAvatarStore struct {
	root string
}

// NewLocalAvatarStore creates root if needed.
func NewLocalAvatarStore(root string) (*LocalAvatarStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalAvatarStore{root: root}, nil
}

func (s *LocalAvatarStore) Put(_ context.Context, userID, filename, _ string, data []byte) (string, error) {
	key := avatarKey(userID, filename)
	full := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalAvatarStore) Get(_ context.Context, ref string) (io.ReadCloser, ObjectInfo, error) {
	if !validRef(ref) {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	f, err := os.Open(s.pathFor(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, ErrObjectNotFound
		}
		return nil, ObjectInfo{}, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, err
	}
	contentType := mime.TypeByExtension(path.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, ObjectInfo{ContentType: contentType, Size: stat.Size()}, nil
}

func (s *LocalAvatarStore) Delete(_ context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	if err := os.Remove(s.pathFor(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalAvatarStore) pathFor(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}

// LegacyFiles resolves attachment paths written by the old disk uploader.
type LegacyFiles struct {
	root string
}

// NewLegacyFiles serves paths relative to root.
func NewLegacyFiles(root string) *LegacyFiles {
	return &LegacyFiles{root: root}
}

// Resolve returns the absolute file for a stored legacy path, refusing
// anything that escapes root.
func (l *LegacyFiles) Resolve(stored string) (string, error) {
	rootAbs, err := filepath.Abs(l.root)
	if err != nil {
		return "", err
	}
	rel := strings.TrimLeft(filepath.FromSlash(stored), `/\`)
	full := filepath.Join(rootAbs, rel)
	if full != rootAbs && !strings.HasPrefix(full, rootAbs+string(filepath.Separator)) {
		return "", ErrObjectNotFound
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrObjectNotFound
		}
		return "", err
	}
	return full, nil
}

// Remove deletes a legacy file. A file that is already gone is not an error.
func (l *LegacyFiles) Remove(stored string) error {
	full, err := l.Resolve(stored)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return err
	}
	return os.Remove(full)
}
