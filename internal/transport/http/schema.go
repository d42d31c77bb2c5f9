package http

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed sync_schema.json
var syncSchemaJSON []byte

const syncSchemaURL = "schema://sync-queue.json"

var (
	syncSchemaOnce sync.Once
	syncSchema     *jsonschema.Schema
	syncSchemaErr  error
)

// validateSyncPayload checks a raw sync request body against the sync-queue schema.
func validateSyncPayload(raw []byte) error {
	schema, err := compiledSyncSchema()
	if err != nil {
		return err
	}
	// The jsonschema library expects a parsed JSON value (any), not raw bytes.
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func compiledSyncSchema() (*jsonschema.Schema, error) {
	syncSchemaOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(bytes.NewReader(syncSchemaJSON))
		if err != nil {
			syncSchemaErr = fmt.Errorf("parse sync schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(syncSchemaURL, def); err != nil {
			syncSchemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		syncSchema, syncSchemaErr = c.Compile(syncSchemaURL)
	})
	return syncSchema, syncSchemaErr
}
