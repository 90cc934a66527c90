// Package testutil provides helpers for examples and tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/justapithecus/sluice/sluice"
)

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }

// Seed writes fixture objects into a store, one Put per key. Bodies are
// given as strings; use JSONL lines for objects the record pipeline will
// decode.
func Seed(ctx context.Context, store sluice.Store, objects map[string]string) error {
	for key, body := range objects {
		if err := store.Put(ctx, key, strings.NewReader(body)); err != nil {
			return fmt.Errorf("seed %q: %w", key, err)
		}
	}
	return nil
}
