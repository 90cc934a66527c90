package sluice

import (
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// JSONL decoder
// -----------------------------------------------------------------------------

func TestJSONLDecoder_Name(t *testing.T) {
	if got := NewJSONLDecoder().Name(); got != "jsonl" {
		t.Errorf("Name() = %q, want %q", got, "jsonl")
	}
}

func TestJSONLDecoder_DecodesOneRecordPerLine(t *testing.T) {
	input := `{"clientId":"a","count":1}
{"clientId":"b","count":2}
{"clientId":"c","count":3}`

	pings, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 3 {
		t.Fatalf("got %d records, want 3", len(pings))
	}

	if got := pings[0].Payload["clientId"]; got != "a" {
		t.Errorf(`record 0 clientId = %v, want "a"`, got)
	}
	// JSON numbers decode as float64.
	if got := pings[2].Payload["count"]; got != float64(3) {
		t.Errorf("record 2 count = %v (%T), want 3", got, got)
	}
}

func TestJSONLDecoder_SkipsEmptyLines(t *testing.T) {
	input := "{\"a\":1}\n\n\n{\"a\":2}\n"

	pings, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 2 {
		t.Errorf("got %d records, want 2 (empty lines skipped)", len(pings))
	}
}

func TestJSONLDecoder_EmptyInput_YieldsNothing(t *testing.T) {
	pings, err := NewJSONLDecoder().Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 0 {
		t.Errorf("got %d records from empty input, want 0", len(pings))
	}
}

func TestJSONLDecoder_LiftsMetaField(t *testing.T) {
	input := `{"clientId":"a","meta":{"docType":"main","sourceName":"telemetry"}}`

	pings, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 1 {
		t.Fatalf("got %d records, want 1", len(pings))
	}

	if got := pings[0].Meta["docType"]; got != "main" {
		t.Errorf(`meta["docType"] = %v, want "main"`, got)
	}
	if _, ok := pings[0].Payload["meta"]; ok {
		t.Error("lifted meta field still present in payload")
	}
	if got := pings[0].Payload["clientId"]; got != "a" {
		t.Errorf(`payload["clientId"] = %v, want "a"`, got)
	}
}

func TestJSONLDecoder_NonObjectMeta_StaysInPayload(t *testing.T) {
	input := `{"clientId":"a","meta":"just a string"}`

	pings, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 1 {
		t.Fatalf("got %d records, want 1", len(pings))
	}

	if pings[0].Meta != nil {
		t.Errorf("Meta = %v, want nil for non-object meta field", pings[0].Meta)
	}
	if got := pings[0].Payload["meta"]; got != "just a string" {
		t.Errorf(`payload["meta"] = %v, want the original string`, got)
	}
}

func TestJSONLDecoder_MalformedLine_FailsWholeObject(t *testing.T) {
	input := `{"a":1}
{broken
{"a":3}`

	_, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for malformed line, got nil")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the failing line, got: %v", err)
	}
}

func TestJSONLDecoder_LongLine_WithinLimit(t *testing.T) {
	// Longer than bufio.Scanner's default 64KB token size; the decoder
	// must raise the scanner buffer for wide telemetry payloads.
	long := strings.Repeat("x", 128*1024)
	input := `{"blob":"` + long + `"}`

	pings, err := NewJSONLDecoder().Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pings) != 1 {
		t.Fatalf("got %d records, want 1", len(pings))
	}
	if got, _ := pings[0].Payload["blob"].(string); len(got) != len(long) {
		t.Errorf("blob length = %d, want %d", len(got), len(long))
	}
}
