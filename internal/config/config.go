// Package config parses and validates the options a Lazy Scan Facade
// call accepts (SPEC_FULL.md §6.5), the way the teacher's own internal/
// config package decodes and validates a JSON document against an
// embedded schema before handing out a typed struct.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Options are the recognized scan options. Zero values mean "unset"; a
// Resolve'd copy fills in the documented defaults.
type Options struct {
	ChunkSize    int      `json:"chunk_size"`
	ThreadBudget int      `json:"thread_budget"`
	Offset       int64    `json:"offset"`
	Limit        int64    `json:"limit"`
	Projection   []string `json:"projection"`

	PreserveOrder        bool `json:"preserve_order"`
	UseMmap              bool `json:"use_mmap"`
	MissingStringAsNull  bool `json:"missing_string_as_null"`
	ValueLabelsAsStrings bool `json:"value_labels_as_strings"`

	S3Endpoint     string `json:"s3_endpoint"`
	S3UsePathStyle bool   `json:"s3_use_path_style"`

	// MetadataCacheTTL is a Go duration string ("5m", "1h"); "" or "0"
	// means the entry never expires on its own (the default).
	MetadataCacheTTL string `json:"metadata_cache_ttl"`
}

// Defaults are applied by Resolve for every field the caller left at its
// zero value where zero is not itself a valid setting.
const (
	DefaultChunkSize    = 10_000
	DefaultThreadBudget = 4
)

// Resolve validates raw against the options schema, decodes it, and fills
// in defaults. It is the single entry point the facade uses to turn a
// caller-supplied JSON document into a usable Options value.
func Resolve(raw json.RawMessage) (Options, error) {
	if len(raw) > 0 {
		if err := Validate(raw); err != nil {
			return Options{}, fmt.Errorf("config: %w", err)
		}
	}

	opts := Options{ChunkSize: DefaultChunkSize, ThreadBudget: DefaultThreadBudget}
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return Options{}, fmt.Errorf("config: decode options: %w", err)
		}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ThreadBudget <= 0 {
		opts.ThreadBudget = DefaultThreadBudget
	}
	return opts, nil
}

// MetadataCacheTTLDuration parses MetadataCacheTTL, treating "" and "0"
// as "no expiry".
func (o Options) MetadataCacheTTLDuration() (time.Duration, error) {
	if o.MetadataCacheTTL == "" || o.MetadataCacheTTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(o.MetadataCacheTTL)
	if err != nil {
		return 0, fmt.Errorf("config: metadata_cache_ttl: %w", err)
	}
	return d, nil
}
