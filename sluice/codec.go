package sluice

import (
	"bufio"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// JSONL Decoder
// -----------------------------------------------------------------------------

// jsonlDecoder implements Decoder for JSON Lines content.
type jsonlDecoder struct{}

// NewJSONLDecoder creates a JSONL (JSON Lines) decoder.
//
// Each non-empty line must be a JSON object and becomes one record's payload.
// A top-level "meta" object field, when present, is lifted into the record's
// Meta and removed from the payload. A malformed line fails the whole object.
func NewJSONLDecoder() Decoder {
	return &jsonlDecoder{}
}

func (j *jsonlDecoder) Name() string {
	return "jsonl"
}

func (j *jsonlDecoder) Decode(r io.Reader) ([]Ping, error) {
	var pings []Ping
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var payload map[string]any
		if err := jsonCodec.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("jsonl: line %d: %w", line, err)
		}

		ping := Ping{Payload: payload}
		if rawMeta, ok := payload["meta"]; ok {
			if meta, ok := rawMeta.(map[string]any); ok {
				ping.Meta = Metadata(meta)
				delete(payload, "meta")
			}
		}
		pings = append(pings, ping)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}

	return pings, nil
}
