package sluice

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Source catalog
// -----------------------------------------------------------------------------

// catalogFixture seeds a metadata store with a two-source catalog and the
// schema documents the sources point at.
func catalogFixture(t *testing.T) Store {
	t.Helper()
	return seedMemory(t, map[string]string{
		"sources.json": `{
			"telemetry": {
				"bucket": "telemetry-data",
				"prefix": "telemetry/v4",
				"metadata_prefix": "telemetry/v4"
			},
			"crash-reports": {
				"bucket": "crash-data",
				"prefix": "",
				"metadata_prefix": "crash"
			}
		}`,
		"telemetry/v4/schema.json": `{
			"dimensions": [
				{"field_name": "submissionDate"},
				{"field_name": "docType"}
			]
		}`,
		"crash/schema.json": `{
			"dimensions": [
				{"field_name": "crashDate"}
			]
		}`,
	})
}

func TestLoadSources_ParsesCatalog(t *testing.T) {
	sources, err := LoadSources(context.Background(), catalogFixture(t), SourcesKey)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}

	telemetry, ok := sources["telemetry"]
	if !ok {
		t.Fatal("catalog missing telemetry source")
	}
	if telemetry.Bucket != "telemetry-data" {
		t.Errorf("telemetry bucket = %q, want %q", telemetry.Bucket, "telemetry-data")
	}
	if telemetry.Prefix != "telemetry/v4" {
		t.Errorf("telemetry prefix = %q, want %q", telemetry.Prefix, "telemetry/v4")
	}
	if telemetry.MetadataPrefix != "telemetry/v4" {
		t.Errorf("telemetry metadata prefix = %q, want %q", telemetry.MetadataPrefix, "telemetry/v4")
	}
}

func TestLoadSources_MissingCatalog_ReturnsError(t *testing.T) {
	_, err := LoadSources(context.Background(), NewMemory(), SourcesKey)
	if err == nil {
		t.Fatal("expected error for missing catalog, got nil")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound in chain, got: %v", err)
	}
}

func TestLoadSources_MalformedCatalog_ReturnsError(t *testing.T) {
	store := seedMemory(t, map[string]string{"sources.json": "{not json"})

	_, err := LoadSources(context.Background(), store, SourcesKey)
	if err == nil {
		t.Fatal("expected error for malformed catalog, got nil")
	}
	if !strings.Contains(err.Error(), "parse sources catalog") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestFromSource_BuildsDatasetWithCatalogSchema(t *testing.T) {
	data := seedMemory(t, map[string]string{
		"telemetry/v4/20240101/main/a.jsonl": `{"clientId":"x"}`,
	})
	open := func(bucket string) (Store, error) {
		if bucket != "telemetry-data" {
			t.Errorf("factory opened bucket %q, want %q", bucket, "telemetry-data")
		}
		return data, nil
	}

	ds, err := FromSource(context.Background(), catalogFixture(t), "telemetry", open)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}

	if got := ds.Schema(); !slices.Equal(got, []string{"submissionDate", "docType"}) {
		t.Errorf("schema = %v, want [submissionDate docType]", got)
	}
	if got := ds.Prefix(); got != "telemetry/v4" {
		t.Errorf("prefix = %q, want %q", got, "telemetry/v4")
	}

	// The dataset is immediately queryable with the catalog's layout.
	records := collectRecords(t, ds)
	if len(records) != 1 {
		t.Fatalf("got %d records through catalog dataset, want 1", len(records))
	}
	if got := records[0].Meta["submissionDate"]; got != "20240101" {
		t.Errorf(`meta["submissionDate"] = %v, want "20240101"`, got)
	}
}

func TestFromSource_UnknownName_ListsKnownSources(t *testing.T) {
	open := func(string) (Store, error) { return NewMemory(), nil }

	_, err := FromSource(context.Background(), catalogFixture(t), "no-such-source", open)
	if err == nil {
		t.Fatal("expected error for unknown source, got nil")
	}
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got: %v", err)
	}
	// Known names are listed, sorted, to make typos obvious.
	if !strings.Contains(err.Error(), "crash-reports, telemetry") {
		t.Errorf("error should list known sources, got: %v", err)
	}
}

func TestFromSource_NilFactory_ReturnsError(t *testing.T) {
	_, err := FromSource(context.Background(), catalogFixture(t), "telemetry", nil)
	if err == nil {
		t.Fatal("expected error for nil factory, got nil")
	}
}

func TestFromSource_MissingSchema_ReturnsError(t *testing.T) {
	store := seedMemory(t, map[string]string{
		"sources.json": `{"lonely": {"bucket": "b", "prefix": "", "metadata_prefix": "lonely"}}`,
	})
	open := func(string) (Store, error) { return NewMemory(), nil }

	_, err := FromSource(context.Background(), store, "lonely", open)
	if err == nil {
		t.Fatal("expected error for missing schema document, got nil")
	}
	if !strings.Contains(err.Error(), "lonely/schema.json") {
		t.Errorf("error should name the schema key, got: %v", err)
	}
}

func TestFromSource_FactoryError_Propagates(t *testing.T) {
	boom := errors.New("bucket unavailable")
	open := func(string) (Store, error) { return nil, boom }

	_, err := FromSource(context.Background(), catalogFixture(t), "telemetry", open)
	if !errors.Is(err, boom) {
		t.Errorf("expected factory error in chain, got: %v", err)
	}
}

func TestFromSource_CallerOptionsApply(t *testing.T) {
	data := NewMemory()
	open := func(string) (Store, error) { return data, nil }

	ds, err := FromSource(context.Background(), catalogFixture(t), "telemetry", open,
		WithDecoder(NewParquetDecoder()))
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}

	if got := ds.decoder.Name(); got != "parquet" {
		t.Errorf("decoder = %q, want caller override %q", got, "parquet")
	}
	// The catalog prefix survives alongside caller options.
	if got := ds.Prefix(); got != "telemetry/v4" {
		t.Errorf("prefix = %q, want %q", got, "telemetry/v4")
	}
}

func TestFromSource_EmptyPrefixSource_QueriesBucketRoot(t *testing.T) {
	data := seedMemory(t, map[string]string{
		"20240101/a.jsonl": `{"clientId":"c"}`,
	})
	open := func(string) (Store, error) { return data, nil }

	ds, err := FromSource(context.Background(), catalogFixture(t), "crash-reports", open)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	if got := ds.Prefix(); got != "" {
		t.Errorf("prefix = %q, want bucket root", got)
	}

	records := collectRecords(t, ds)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
