// SPDX-License-Identifier: MIT

// Package storage reads HLS assets from the object store. Keys are resource
// paths with the leading slash stripped, relative to the configured bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/MusicSocial/streaming/internal/config"
	"github.com/MusicSocial/streaming/internal/metrics"
)

// Reader provides read access to stored objects.
type Reader interface {
	// ReadText fully materialises the object as UTF-8. Manifests only.
	ReadText(ctx context.Context, key string) (string, error)
	// Stream returns a reader over the object's bytes. The caller owns the
	// reader and must close it on every exit path, including client
	// disconnect, so the backing connection is released.
	Stream(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat reports whether the object exists, without reading its body.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// ObjectInfo is the subset of object metadata the services consume.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// MinioReader is a Reader backed by a MinIO/S3 bucket.
type MinioReader struct {
	client *minio.Client
	bucket string
}

// NewMinioReader connects a Reader to the configured bucket.
func NewMinioReader(cfg config.MinioConfig) (*MinioReader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioReader{client: client, bucket: cfg.Bucket}, nil
}

// ReadText implements Reader.
func (m *MinioReader) ReadText(ctx context.Context, key string) (string, error) {
	start := time.Now()
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", mapError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", mapError(key, err)
	}
	metrics.ObserveObjectRead("read_text", time.Since(start))
	return string(data), nil
}

// Stream implements Reader. The returned reader surfaces a NoSuchKey error
// on first read for missing objects, so Stat is consulted up front to keep
// the 404 mapping ahead of the response status line.
func (m *MinioReader) Stream(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := m.Stat(ctx, key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	return obj, nil
}

// Stat implements Reader.
func (m *MinioReader) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	start := time.Now()
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, mapError(key, err)
	}
	metrics.ObserveObjectRead("stat", time.Since(start))
	return ObjectInfo{Key: key, Size: info.Size, ContentType: info.ContentType}, nil
}

func mapError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return NotFoundError(key)
	}
	return fmt.Errorf("storage: get %s: %w", key, err)
}
