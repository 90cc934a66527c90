// Package s3 provides an S3-compatible store adapter for Sluice.
//
// The adapter supports AWS S3, MinIO, LocalStack, Cloudflare R2, and other
// S3-compatible object stores. It is read-oriented, matching how sluice is
// used: listing drives partition resolution (ListObjectsV2 with a "/"
// delimiter for prefixes, full pagination for objects) and Get feeds record
// decoding. Put exists for fixtures and tooling and refuses to overwrite;
// bulk ingestion belongs to the pipelines that write these buckets.
//
// # Consistency
//
// AWS S3 provides strong read-after-write consistency. Other S3-compatible
// backends may differ; consult their documentation.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/justapithecus/sluice/sluice"
)

// delimiter separates dimension levels in object keys.
const delimiter = "/"

// API defines the subset of the S3 client interface used by the store.
// This enables testing with mock implementations.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is an optional key prefix for all operations. If set, all
	// keys are prefixed with this value (with a trailing slash added if
	// missing) and listed keys come back relative to it.
	Prefix string
}

// Store implements sluice.Store using an S3-compatible backend.
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates an S3 store with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint;
// NewClient in this package builds one, or use
// github.com/aws/aws-sdk-go-v2/config directly.
//
// Example:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	store, err := s3store.New(client, s3store.Config{Bucket: "telemetry-data"})
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
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
// The body is buffered in memory to give the SDK a seekable, sized reader;
// the write is conditional (If-None-Match) so concurrent writers cannot
// clobber each other.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: buffering body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "PreconditionFailed" || code == "412" {
				return sluice.ErrKeyExists
			}
		}
		return fmt.Errorf("s3: put object: %w", err)
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

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, sluice.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}

	return out.Body, nil
}

// Exists checks whether a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3: head object: %w", err)
	}
	return true, nil
}

// Delete removes the key if it exists. Safe to call on missing keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	fullKey, err := s.validateKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("s3: delete object: %w", err)
	}
	return nil
}

// ListObjects returns all objects under the given prefix, in lexicographic
// key order. Pagination is handled automatically; all matching objects are
// returned.
func (s *Store) ListObjects(ctx context.Context, prefix string) ([]sluice.ObjectSummary, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	var objects []sluice.ObjectSummary
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list objects: %w", err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			objects = append(objects, sluice.ObjectSummary{
				Key:  strings.TrimPrefix(*obj.Key, s.prefix),
				Size: aws.ToInt64(obj.Size),
			})
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return objects, nil
}

// ListPrefixes returns the immediate child prefixes under the given prefix,
// each with a trailing slash, in lexicographic order. This is a delimited
// listing: S3 rolls keys up into CommonPrefixes at the first "/" past the
// query prefix.
func (s *Store) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix, err := s.validatePrefix(prefix)
	if err != nil {
		return nil, err
	}

	var prefixes []string
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(fullPrefix),
			Delimiter:         aws.String(delimiter),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list prefixes: %w", err)
		}

		for _, cp := range out.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			prefixes = append(prefixes, strings.TrimPrefix(*cp.Prefix, s.prefix))
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return prefixes, nil
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
// Trailing slashes are preserved: a prefix "a/b/" lists inside b, while
// "a/b" also matches sibling keys like "a/bc".
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
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API. It emulates the listing behaviors
// the store depends on: lexicographic order, delimiter roll-up into
// CommonPrefixes, and ContinuationToken pagination when PageSize is set.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PageSize caps items (keys plus rolled-up prefixes) per
	// ListObjectsV2 page. Zero returns everything in one page.
	PageSize int

	// Call counters for test assertions.
	ListCalls int

	// FailListWith, when set, makes ListObjectsV2 return this error.
	FailListWith error

	// FailGetWith, when set, makes GetObject return this error for keys
	// in FailGetKeys (or all keys if empty).
	FailGetWith error
	FailGetKeys map[string]bool
}

// NewMockS3Client creates a mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string][]byte),
	}
}

// PutObject implements API.PutObject for testing.
func (m *MockS3Client) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if aws.ToString(params.IfNoneMatch) == "*" {
		if _, exists := m.objects[key]; exists {
			return nil, &smithyAPIError{code: "PreconditionFailed", message: "object already exists"}
		}
	}

	m.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.RLock()
	data, exists := m.objects[key]
	failErr := m.FailGetWith
	failAll := failErr != nil && len(m.FailGetKeys) == 0
	failThis := failErr != nil && m.FailGetKeys[key]
	m.mu.RUnlock()

	if failAll || failThis {
		return nil, failErr
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.RLock()
	data, exists := m.objects[key]
	m.mu.RUnlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// DeleteObject implements API.DeleteObject for testing.
func (m *MockS3Client) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()

	return &s3.DeleteObjectOutput{}, nil
}

// listItem is one entry of a delimited listing: a key or a rolled-up prefix.
type listItem struct {
	name     string
	isPrefix bool
	size     int64
}

// ListObjectsV2 implements API.ListObjectsV2 for testing.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	delim := aws.ToString(params.Delimiter)

	m.mu.Lock()
	m.ListCalls++
	failErr := m.FailListWith
	m.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}

	m.mu.RLock()
	items := m.collectItems(prefix, delim)
	m.mu.RUnlock()

	// Page over the merged item sequence the way S3 does: keys and
	// rolled-up prefixes share the lexicographic stream and the page cap.
	start := 0
	if params.ContinuationToken != nil {
		n, err := strconv.Atoi(aws.ToString(params.ContinuationToken))
		if err != nil {
			return nil, &smithyAPIError{code: "InvalidArgument", message: "bad continuation token"}
		}
		start = n
	}

	end := len(items)
	pageSize := m.PageSize
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(items))}
	for _, item := range items[start:end] {
		if item.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{
				Prefix: aws.String(item.name),
			})
		} else {
			out.Contents = append(out.Contents, types.Object{
				Key:  aws.String(item.name),
				Size: aws.Int64(item.size),
			})
		}
	}
	if end < len(items) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// collectItems builds the full sorted listing for a prefix and delimiter.
// Callers hold the read lock.
func (m *MockS3Client) collectItems(prefix, delim string) []listItem {
	seenPrefix := make(map[string]bool)
	var items []listItem

	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if delim == "" {
			items = append(items, listItem{name: key, size: int64(len(data))})
			continue
		}
		rest := key[len(prefix):]
		if i := strings.Index(rest, delim); i >= 0 {
			cp := prefix + rest[:i+len(delim)]
			if !seenPrefix[cp] {
				seenPrefix[cp] = true
				items = append(items, listItem{name: cp, isPrefix: true})
			}
			continue
		}
		items = append(items, listItem{name: key, size: int64(len(data))})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
