// Package minio provides a store adapter for Sluice backed by the native
// MinIO client.
//
// MinIO speaks the S3 protocol, so the sluice/s3 adapter also works against
// it; this package is for deployments standardized on the MinIO client
// library (self-hosted MinIO, Ceph, SeaweedFS, Garage) or air-gapped
// environments that avoid the AWS SDK.
//
// Usage:
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store, err := miniostore.New(client, miniostore.Config{Bucket: "telemetry-data"})
//	ds, err := sluice.New(store, sluice.TelemetrySchema())
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/justapithecus/sluice/sluice"
)

// delimiter separates dimension levels in object keys.
const delimiter = "/"

// Config holds configuration for the MinIO store.
type Config struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations. If set, all
	// keys are prefixed with this value (with a trailing slash added if
	// missing) and listed keys come back relative to it.
	Prefix string
}

// Store implements sluice.Store using the MinIO client.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO store with the given client and configuration.
// The client must be pre-configured with endpoint and credentials.
func New(client *minio.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("minio: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, delimiter) {
		prefix += delimiter
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Put writes data to the given key. Returns ErrKeyExists if the key is
// already present.
//
// The existence check and the upload are separate requests, so the
// no-overwrite guarantee is best effort under concurrent writers. Sluice
// only writes fixtures and catalogs through this path.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}

	exists, err := s.exists(ctx, fullKey)
	if err != nil {
		return fmt.Errorf("minio: checking existence: %w", err)
	}
	if exists {
		return sluice.ErrKeyExists
	}

	if _, err := s.client.PutObject(ctx, s.bucket, fullKey, r, -1, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("minio: put object: %w", err)
	}
	return nil
}

// Get retrieves data from the given key. Returns ErrNotFound if the key
// does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return nil, err
	}

	// GetObject defers the request until the first read, so probe first
	// to surface missing keys here rather than mid-stream.
	if _, err := s.client.StatObject(ctx, s.bucket, fullKey, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, sluice.ErrNotFound
		}
		return nil, fmt.Errorf("minio: stat object: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, fullKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio: get object: %w", err)
	}
	return obj, nil
}

// Exists checks whether a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return false, err
	}
	return s.exists(ctx, fullKey)
}

// Delete removes the key if it exists. Safe to call on missing keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, fullKey, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("minio: remove object: %w", err)
	}
	return nil
}

// ListObjects returns all objects under the given prefix, in lexicographic
// key order.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]sluice.ObjectSummary, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	var objects []sluice.ObjectSummary
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio: list objects: %w", obj.Err)
		}
		objects = append(objects, sluice.ObjectSummary{
			Key:  strings.TrimPrefix(obj.Key, s.prefix),
			Size: obj.Size,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// ListPrefixes returns the immediate child prefixes under the given prefix,
// each with a trailing slash, in lexicographic order. A non-recursive MinIO
// listing reports child prefixes as entries whose key ends with the
// delimiter.
func (s *Store) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	var prefixes []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio: list prefixes: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, delimiter) {
			continue
		}
		prefixes = append(prefixes, strings.TrimPrefix(obj.Key, s.prefix))
	}

	sort.Strings(prefixes)
	return prefixes, nil
}

// exists checks if an object exists (internal helper).
func (s *Store) exists(ctx context.Context, fullKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, fullKey, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// validateKey validates and returns the full key for object operations.
func (s *Store) validateKey(key string) (string, error) {
	if key == "" {
		return "", sluice.ErrInvalidKey
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", sluice.ErrInvalidKey
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", sluice.ErrInvalidKey
	}

	return s.prefix + cleaned, nil
}

// validatePrefix validates and returns the full prefix for list operations.
func (s *Store) validatePrefix(prefix string) (string, error) {
	if prefix == "" {
		return s.prefix, nil
	}

	hadSlash := strings.HasSuffix(prefix, delimiter)
	cleaned := path.Clean(prefix)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", sluice.ErrInvalidKey
	}
	if cleaned == "." {
		return s.prefix, nil
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if hadSlash {
		cleaned += delimiter
	}

	return s.prefix + cleaned, nil
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
