package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// optionsSchema mirrors the option table in SPEC_FULL.md §6.5.
const optionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"chunk_size": {"type": "integer", "minimum": 1},
		"thread_budget": {"type": "integer", "minimum": 1},
		"offset": {"type": "integer", "minimum": 0},
		"limit": {"type": "integer", "minimum": 0},
		"projection": {"type": "array", "items": {"type": "string"}},
		"preserve_order": {"type": "boolean"},
		"use_mmap": {"type": "boolean"},
		"missing_string_as_null": {"type": "boolean"},
		"value_labels_as_strings": {"type": "boolean"},
		"s3_endpoint": {"type": "string"},
		"s3_use_path_style": {"type": "boolean"},
		"metadata_cache_ttl": {"type": "string"}
	}
}`

// Validate checks raw against the options schema without decoding it into
// an Options value, mirroring the teacher's config.Validate(schema, raw)
// pattern.
func Validate(raw json.RawMessage) error {
	sch, err := jsonschema.CompileString("statreader-options.json", optionsSchema)
	if err != nil {
		return fmt.Errorf("config: compile options schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: invalid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
