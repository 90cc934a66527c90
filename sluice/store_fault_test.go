package sluice

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// -----------------------------------------------------------------------------
// Fault-Injection Store Wrapper (test-only)
// -----------------------------------------------------------------------------
//
// faultStore wraps a Store and enables deterministic fault injection for
// testing query failure paths. It provides:
//   - Error injection on specific operations, optionally matched by key
//   - Call observation/recording
//
// This is NOT production code. It exists solely to verify error-handling
// guarantees under controlled failure conditions without relying on timing.

// faultStore wraps a Store with fault injection capabilities.
type faultStore struct {
	inner Store

	mu sync.Mutex

	// Error injection: set these to inject errors on specific operations.
	getErr          error
	getErrMatch     string // if set, only inject getErr on keys containing this substring
	listObjectsErr  error
	listPrefixesErr error

	// Call observation: tracks which methods were called.
	getCalls          []string
	listObjectsCalls  []string
	listPrefixesCalls []string
}

// newFaultStore creates a fault-injection wrapper around the given store.
func newFaultStore(inner Store) *faultStore {
	return &faultStore{inner: inner}
}

// --- Fault injection setters ---

// SetGetError sets an error to be returned by Get calls.
// If match is non-empty, the error is only returned for keys containing match.
func (f *faultStore) SetGetError(err error, match ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
	if len(match) > 0 {
		f.getErrMatch = match[0]
	} else {
		f.getErrMatch = ""
	}
}

// SetListObjectsError sets an error to be returned by all ListObjects calls.
func (f *faultStore) SetListObjectsError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listObjectsErr = err
}

// SetListPrefixesError sets an error to be returned by all ListPrefixes calls.
func (f *faultStore) SetListPrefixesError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPrefixesErr = err
}

// --- Call observation ---

// GetCalls returns keys passed to Get.
func (f *faultStore) GetCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.getCalls...)
}

// ListObjectsCalls returns prefixes passed to ListObjects.
func (f *faultStore) ListObjectsCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listObjectsCalls...)
}

// ListPrefixesCalls returns prefixes passed to ListPrefixes.
func (f *faultStore) ListPrefixesCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listPrefixesCalls...)
}

// --- Store interface implementation ---

func (f *faultStore) Put(ctx context.Context, key string, r io.Reader) error {
	return f.inner.Put(ctx, key, r)
}

func (f *faultStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	injectedErr := f.getErr
	errMatch := f.getErrMatch
	f.getCalls = append(f.getCalls, key)
	f.mu.Unlock()

	if injectedErr != nil && (errMatch == "" || strings.Contains(key, errMatch)) {
		return nil, injectedErr
	}
	return f.inner.Get(ctx, key)
}

func (f *faultStore) Exists(ctx context.Context, key string) (bool, error) {
	return f.inner.Exists(ctx, key)
}

func (f *faultStore) Delete(ctx context.Context, key string) error {
	return f.inner.Delete(ctx, key)
}

func (f *faultStore) ListObjects(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	f.mu.Lock()
	injectedErr := f.listObjectsErr
	f.listObjectsCalls = append(f.listObjectsCalls, prefix)
	f.mu.Unlock()

	if injectedErr != nil {
		return nil, injectedErr
	}
	return f.inner.ListObjects(ctx, prefix)
}

func (f *faultStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	injectedErr := f.listPrefixesErr
	f.listPrefixesCalls = append(f.listPrefixesCalls, prefix)
	f.mu.Unlock()

	if injectedErr != nil {
		return nil, injectedErr
	}
	return f.inner.ListPrefixes(ctx, prefix)
}

// --- Seed helper ---

// seedMemory creates a memory store populated with the given key/body pairs.
func seedMemory(t *testing.T, objects map[string]string) Store {
	t.Helper()
	store := NewMemory()
	for key, body := range objects {
		if err := store.Put(context.Background(), key, strings.NewReader(body)); err != nil {
			t.Fatalf("seed %q: %v", key, err)
		}
	}
	return store
}

// --- Sentinel errors for injection ---

var (
	errInjectedGet  = errors.New("injected: get error")
	errInjectedList = errors.New("injected: list error")
)
