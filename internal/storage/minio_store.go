package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/loopio/feedback-tracker/internal/persistence"
)

// MinioAvatarStore keeps avatars as objects in a MinIO bucket.
type MinioAvatarStore struct {
	client *minio.Client
	bucket string
}

// NewMinioAvatarStore wraps a connected client.
func NewMinioAvatarStore(m *persistence.Minio) *MinioAvatarStore {
	return &MinioAvatarStore{client: m.Client, bucket: m.Bucket}
}

func (s *MinioAvatarStore) Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	key := avatarKey(userID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *MinioAvatarStore) Get(ctx context.Context, ref string) (io.ReadCloser, ObjectInfo, error) {
	if !validRef(ref) {
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, translateMinioErr(err)
	}
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, translateMinioErr(err)
	}
	return obj, ObjectInfo{ContentType: stat.ContentType, Size: stat.Size}, nil
}

func (s *MinioAvatarStore) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
}

func translateMinioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return err
}
