package sluice

import (
	"context"
	"regexp"
)

// -----------------------------------------------------------------------------
// Telemetry Facade
// -----------------------------------------------------------------------------

// TelemetrySourceName is the catalog source name for the main telemetry
// dataset.
const TelemetrySourceName = "telemetry"

// sanitizePattern matches characters the ingestion pipeline replaces with
// underscores before using a value as a path component.
var sanitizePattern = regexp.MustCompile(`[^a-zA-Z0-9_.]`)

// TelemetrySchema returns the dimension order telemetry buckets are laid
// out in. Use it to build telemetry datasets without a source catalog.
func TelemetrySchema() []string {
	return []string{
		"submissionDate",
		"sourceName",
		"sourceVersion",
		"docType",
		"appName",
		"appUpdateChannel",
		"appVersion",
		"appBuildId",
	}
}

// TelemetryFilters maps analyst-friendly filters onto telemetry dimensions.
//
// String fields bind an exact value; a zero value or "*" leaves the
// dimension wildcarded. Exact values are sanitized the way ingestion
// sanitizes path components, so filters can be written with raw values like
// "Firefox/Nightly".
//
// BuildID and SubmissionDate are inclusive windows: the zero value is a
// wildcard, equal endpoints or an empty second element bind the single
// exact value, anything else binds a lexicographic range. Telemetry encodes
// dates and build IDs so lexicographic order is chronological order. Range
// endpoints are not sanitized.
type TelemetryFilters struct {
	// DocType is the ping type, e.g. "main" or "saved_session".
	DocType string

	// SourceName is the ingestion source, normally "telemetry".
	SourceName string

	// SourceVersion is the ingestion source version, normally "4".
	SourceVersion string

	// AppName is the application name, e.g. "Firefox".
	AppName string

	// Channel is the update channel, e.g. "nightly" or "release".
	Channel string

	// Version is the application version, e.g. "60.0a1".
	Version string

	// BuildID is a build ID window, e.g. {"20180601000000", "20180610999999"}.
	BuildID [2]string

	// SubmissionDate is a submission date window, e.g. {"20180601", "20180610"}.
	SubmissionDate [2]string
}

// DefaultTelemetryFilters returns filters with the conventional defaults:
// saved_session pings from telemetry source version 4.
func DefaultTelemetryFilters() TelemetryFilters {
	return TelemetryFilters{
		DocType:       "saved_session",
		SourceName:    TelemetrySourceName,
		SourceVersion: "4",
	}
}

// Apply binds the set filters onto the dataset and returns the refined
// dataset. Unset and "*" filters are skipped. Errors from Where propagate:
// a dataset whose schema lacks a telemetry dimension rejects that filter.
func (f TelemetryFilters) Apply(d *Dataset) (*Dataset, error) {
	exact := []struct {
		dimension string
		value     string
	}{
		{"sourceName", f.SourceName},
		{"sourceVersion", f.SourceVersion},
		{"docType", f.DocType},
		{"appName", f.AppName},
		{"appUpdateChannel", f.Channel},
		{"appVersion", f.Version},
	}

	next := d
	var err error
	for _, e := range exact {
		if e.value == "" || e.value == "*" {
			continue
		}
		next, err = next.Where(e.dimension, Exact(SanitizeDimension(e.value)))
		if err != nil {
			return nil, err
		}
	}

	windows := []struct {
		dimension string
		window    [2]string
	}{
		{"submissionDate", f.SubmissionDate},
		{"appBuildId", f.BuildID},
	}
	for _, w := range windows {
		cond := windowCondition(w.window)
		if cond == nil {
			continue
		}
		next, err = next.Where(w.dimension, cond)
		if err != nil {
			return nil, err
		}
	}

	return next, nil
}

// windowCondition turns a [2]string filter window into a condition, or nil
// for a wildcard.
func windowCondition(w [2]string) Condition {
	lo, hi := w[0], w[1]
	switch {
	case lo == "" && hi == "":
		return nil
	case lo == "*":
		return nil
	case hi == "" || hi == lo:
		return Exact(SanitizeDimension(lo))
	default:
		return Between(lo, hi)
	}
}

// Pings builds a telemetry query in one call: the dataset comes from the
// catalog's "telemetry" source and the filters are bound on top.
func Pings(ctx context.Context, catalog Store, open StoreFactory, filters TelemetryFilters, opts ...Option) (*Dataset, error) {
	d, err := FromSource(ctx, catalog, TelemetrySourceName, open, opts...)
	if err != nil {
		return nil, err
	}
	return filters.Apply(d)
}

// SanitizeDimension replaces characters outside [a-zA-Z0-9_.] with
// underscores, matching how ingestion sanitizes dimension values before
// building object keys. Exact telemetry filters are sanitized with this
// automatically.
func SanitizeDimension(v string) string {
	return sanitizePattern.ReplaceAllString(v, "_")
}
