package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/extraction_result.schema.json
var resultSchemaJSON []byte

const resultSchemaURL = "extraction_result.schema.json"

var (
	resultSchemaOnce sync.Once
	resultSchema     *jsonschema.Schema
	resultSchemaErr  error
)

// ResultSchema returns the JSON schema document for ExtractionResult.
func ResultSchema() []byte {
	return append([]byte(nil), resultSchemaJSON...)
}

func compiledResultSchema() (*jsonschema.Schema, error) {
	resultSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(resultSchemaURL, bytes.NewReader(resultSchemaJSON)); err != nil {
			resultSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		resultSchema, resultSchemaErr = compiler.Compile(resultSchemaURL)
		if resultSchemaErr != nil {
			resultSchemaErr = fmt.Errorf("compile schema: %w", resultSchemaErr)
		}
	})
	return resultSchema, resultSchemaErr
}

// ValidateJSON checks serialized result JSON against the embedded schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledResultSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}
