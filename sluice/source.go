package sluice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// -----------------------------------------------------------------------------
// Source Catalog
// -----------------------------------------------------------------------------

// Catalog object keys. A metadata bucket holds one sources document at the
// root and one schema document per source under its metadata prefix.
const (
	// SourcesKey is the key of the catalog document mapping source names
	// to their locations.
	SourcesKey = "sources.json"

	// SchemaKey is the name of the per-source schema document, stored
	// under the source's metadata prefix.
	SchemaKey = "schema.json"
)

// ErrUnknownSource indicates a source name missing from the catalog.
var ErrUnknownSource = errors.New("unknown source")

// Source describes one named dataset in a catalog: where its data lives and
// where its schema document is stored.
type Source struct {
	// Bucket is the bucket holding the source's data.
	Bucket string `json:"bucket"`

	// Prefix is the key prefix of the source's dimension tree within the
	// data bucket.
	Prefix string `json:"prefix"`

	// MetadataPrefix locates the source's schema document within the
	// metadata bucket, under "<metadata_prefix>/schema.json".
	MetadataPrefix string `json:"metadata_prefix"`
}

// sourceSchema is the shape of a schema.json document.
type sourceSchema struct {
	Dimensions []struct {
		FieldName string `json:"field_name"`
	} `json:"dimensions"`
}

// LoadSources reads a sources catalog from the given key in a metadata
// store. The document maps source names to Source entries.
func LoadSources(ctx context.Context, store Store, key string) (map[string]Source, error) {
	raw, err := readAllKey(ctx, store, key)
	if err != nil {
		return nil, fmt.Errorf("sluice: read sources catalog %q: %w", key, err)
	}

	sources := make(map[string]Source)
	if err := jsonCodec.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("sluice: parse sources catalog %q: %w", key, err)
	}
	return sources, nil
}

// FromSource builds a Dataset for a named source using a metadata store
// holding the catalog.
//
// The source's dimension schema is read from schema.json under the source's
// metadata prefix, and the data bucket named in the catalog is opened
// through the factory. Datasets built this way know the correct dimension
// order without the caller hardcoding it.
//
// An unknown source name fails with ErrUnknownSource; the error text lists
// the catalog's known names.
func FromSource(ctx context.Context, catalog Store, name string, open StoreFactory, opts ...Option) (*Dataset, error) {
	if open == nil {
		return nil, errors.New("sluice: store factory is required")
	}

	sources, err := LoadSources(ctx, catalog, SourcesKey)
	if err != nil {
		return nil, err
	}

	source, ok := sources[name]
	if !ok {
		return nil, fmt.Errorf("sluice: source %q (known sources: %s): %w",
			name, strings.Join(sourceNames(sources), ", "), ErrUnknownSource)
	}

	schema, err := loadSchema(ctx, catalog, source)
	if err != nil {
		return nil, err
	}

	store, err := open(source.Bucket)
	if err != nil {
		return nil, fmt.Errorf("sluice: open bucket %q for source %q: %w", source.Bucket, name, err)
	}

	if source.Prefix != "" {
		opts = append([]Option{WithPrefix(source.Prefix)}, opts...)
	}
	return New(store, schema, opts...)
}

// loadSchema reads and parses a source's schema document, returning the
// dimension names in layout order.
func loadSchema(ctx context.Context, catalog Store, source Source) ([]string, error) {
	key := SchemaKey
	if source.MetadataPrefix != "" {
		key = strings.TrimSuffix(source.MetadataPrefix, "/") + "/" + SchemaKey
	}

	raw, err := readAllKey(ctx, catalog, key)
	if err != nil {
		return nil, fmt.Errorf("sluice: read schema %q: %w", key, err)
	}

	var schema sourceSchema
	if err := jsonCodec.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("sluice: parse schema %q: %w", key, err)
	}

	dimensions := make([]string, len(schema.Dimensions))
	for i, d := range schema.Dimensions {
		dimensions[i] = d.FieldName
	}
	return dimensions, nil
}

// sourceNames returns the catalog's source names, sorted for stable error
// messages.
func sourceNames(sources map[string]Source) []string {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// readAllKey fetches one whole object.
func readAllKey(ctx context.Context, store Store, key string) ([]byte, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
