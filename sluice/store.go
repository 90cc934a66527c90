package sluice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidKey indicates a key or prefix that would escape the storage root.
var ErrInvalidKey = errors.New("invalid key: escapes storage root")

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore implements Store using the local filesystem.
type fsStore struct {
	root string
}

// NewFS creates a filesystem-backed Store rooted at the given directory.
// The directory must exist. Prefixes are interpreted as directories, the way
// object stores list with a "/" delimiter.
//
// Consistency: immediate read-after-write on local filesystems.
func NewFS(root string) (Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &fsStore{root: root}, nil
}

func (f *fsStore) Put(_ context.Context, key string, r io.Reader) error {
	fullPath, err := f.safePathForKey(key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(fullPath); err == nil {
		return ErrKeyExists
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ErrKeyExists
		}
		return err
	}
	defer func() { _ = file.Close() }()

	_, err = io.Copy(file, r)
	return err
}

func (f *fsStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := f.safePathForKey(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *fsStore) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := f.safePathForKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *fsStore) Delete(_ context.Context, key string) error {
	fullPath, err := f.safePathForKey(key)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *fsStore) ListObjects(_ context.Context, prefix string) ([]ObjectSummary, error) {
	searchPath, err := f.safePathForPrefix(prefix)
	if err != nil {
		return nil, err
	}

	var objects []ObjectSummary
	err = filepath.Walk(searchPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			relPath, err := filepath.Rel(f.root, p)
			if err != nil {
				return err
			}
			objects = append(objects, ObjectSummary{
				Key:  filepath.ToSlash(relPath),
				Size: info.Size(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (f *fsStore) ListPrefixes(_ context.Context, prefix string) ([]string, error) {
	searchPath, err := f.safePathForPrefix(prefix)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(searchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var prefixes []string
	for _, entry := range entries {
		if entry.IsDir() {
			prefixes = append(prefixes, childPrefix(prefix, entry.Name()))
		}
	}
	return prefixes, nil
}

func (f *fsStore) safePathForKey(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || key == "" {
		return "", ErrInvalidKey
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidKey
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}

	fullPath := filepath.Join(f.root, cleaned)

	absRoot, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}

	return fullPath, nil
}

func (f *fsStore) safePathForPrefix(prefix string) (string, error) {
	if prefix == "" {
		return f.root, nil
	}

	cleaned := filepath.Clean(filepath.FromSlash(prefix))
	if cleaned == "." {
		return f.root, nil
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidKey
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}

	return filepath.Join(f.root, cleaned), nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore implements Store using an in-memory map.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Store.
//
// Consistency: immediate. Memory is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{
		data: make(map[string][]byte),
	}
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader) error {
	normalized, valid := normalizeKey(key)
	if !valid {
		return ErrInvalidKey
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[normalized]; exists {
		return ErrKeyExists
	}

	m.data[normalized] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	normalized, valid := normalizeKey(key)
	if !valid {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	data, exists := m.data[normalized]
	m.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memoryStore) Exists(_ context.Context, key string) (bool, error) {
	normalized, valid := normalizeKey(key)
	if !valid {
		return false, ErrInvalidKey
	}

	m.mu.RLock()
	_, exists := m.data[normalized]
	m.mu.RUnlock()

	return exists, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	normalized, valid := normalizeKey(key)
	if !valid {
		return ErrInvalidKey
	}

	m.mu.Lock()
	delete(m.data, normalized)
	m.mu.Unlock()

	return nil
}

func (m *memoryStore) ListObjects(_ context.Context, prefix string) ([]ObjectSummary, error) {
	normalized, valid := normalizePrefix(prefix)
	if !valid {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectSummary
	for key, data := range m.data {
		if strings.HasPrefix(key, normalized) {
			objects = append(objects, ObjectSummary{Key: key, Size: int64(len(data))})
		}
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *memoryStore) ListPrefixes(_ context.Context, prefix string) ([]string, error) {
	normalized, valid := normalizePrefix(prefix)
	if !valid {
		return nil, ErrInvalidKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var prefixes []string
	for key := range m.data {
		rest, ok := strings.CutPrefix(key, normalized)
		if !ok {
			continue
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			continue
		}
		child := normalized + rest[:i+1]
		if !seen[child] {
			seen[child] = true
			prefixes = append(prefixes, child)
		}
	}

	sort.Strings(prefixes)
	return prefixes, nil
}

func normalizeKey(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	cleaned := strings.TrimPrefix(path.Clean(key), "/")
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
		return "", false
	}

	return cleaned, true
}

func normalizePrefix(prefix string) (string, bool) {
	if prefix == "" {
		return "", true
	}

	hadSlash := strings.HasSuffix(prefix, "/")
	cleaned := strings.TrimPrefix(path.Clean(prefix), "/")
	if cleaned == "." {
		return "", true
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}

	if hadSlash {
		cleaned += "/"
	}
	return cleaned, true
}

// childPrefix joins a child directory name onto a listing prefix.
func childPrefix(prefix, name string) string {
	trimmed := strings.TrimSuffix(prefix, "/")
	if trimmed == "" {
		return name + "/"
	}
	return trimmed + "/" + name + "/"
}
