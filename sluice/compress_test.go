package sluice

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Transparent decompression
// -----------------------------------------------------------------------------

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func snappyBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecompress_SniffsFormats(t *testing.T) {
	content := []byte(`{"clientId":"a"}` + "\n" + `{"clientId":"b"}`)

	tests := []struct {
		name string
		data []byte
	}{
		{"gzip", gzipBytes(t, content)},
		{"zstd", zstdBytes(t, content)},
		{"snappy", snappyBytes(t, content)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, format, err := decompress(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			defer func() { _ = rc.Close() }()

			if format != tt.name {
				t.Errorf("format = %q, want %q", format, tt.name)
			}

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Errorf("decompressed = %q, want %q", got, content)
			}
		})
	}
}

func TestDecompress_PlainContentPassesThrough(t *testing.T) {
	content := `{"clientId":"plain"}`

	rc, format, err := decompress(strings.NewReader(content))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	defer func() { _ = rc.Close() }()

	if format != "none" {
		t.Errorf("format = %q, want %q", format, "none")
	}

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("passthrough = %q, want %q", got, content)
	}
}

func TestDecompress_ShortContent_PassesThrough(t *testing.T) {
	// Shorter than the longest magic prefix; must not be treated as an error.
	for _, content := range []string{"", "x", "{}"} {
		rc, format, err := decompress(strings.NewReader(content))
		if err != nil {
			t.Fatalf("decompress(%q): %v", content, err)
		}
		if format != "none" {
			t.Errorf("decompress(%q) format = %q, want %q", content, format, "none")
		}
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		_ = rc.Close()
		if string(got) != content {
			t.Errorf("decompress(%q) = %q", content, got)
		}
	}
}

func TestDecompress_TruncatedGzip_FailsOnRead(t *testing.T) {
	full := gzipBytes(t, []byte(`{"clientId":"a"}`))
	truncated := full[:len(full)/2]

	rc, format, err := decompress(bytes.NewReader(truncated))
	if err != nil {
		// Truncation may surface at header parse time, which is fine too.
		return
	}
	defer func() { _ = rc.Close() }()

	if format != "gzip" {
		t.Fatalf("format = %q, want %q", format, "gzip")
	}
	if _, err := io.ReadAll(rc); err == nil {
		t.Error("expected read error from truncated gzip stream")
	}
}
