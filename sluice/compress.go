package sluice

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Transparent Decompression
// -----------------------------------------------------------------------------

// Magic prefixes for the compression formats found in telemetry buckets.
// Content encoding is stored out of band (or not at all) by the services
// writing these objects, so the format is sniffed from the leading bytes.
var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte{0xff, 0x06, 0x00, 0x00} // stream format header chunk
)

// decompressor wraps a reader with one decompression format.
type decompressor struct {
	name  string
	magic []byte
	wrap  func(r io.Reader) (io.ReadCloser, error)
}

var decompressors = []decompressor{
	{
		name:  "gzip",
		magic: gzipMagic,
		wrap: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	},
	{
		name:  "zstd",
		magic: zstdMagic,
		wrap: func(r io.Reader) (io.ReadCloser, error) {
			decoder, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return decoder.IOReadCloser(), nil
		},
	},
	{
		name:  "snappy",
		magic: snappyMagic,
		wrap: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(snappy.NewReader(r)), nil
		},
	},
}

// decompress wraps r with the decompressor whose magic bytes match the
// stream, and reports the format name. Unrecognized content passes through
// unchanged as "none".
func decompress(r io.Reader) (io.ReadCloser, string, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, "", err
	}

	for _, d := range decompressors {
		if bytes.HasPrefix(magic, d.magic) {
			rc, err := d.wrap(br)
			if err != nil {
				return nil, "", err
			}
			return rc, d.name, nil
		}
	}

	return io.NopCloser(br), "none", nil
}
