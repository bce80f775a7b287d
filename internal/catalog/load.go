package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// ErrInvalidSnapshot is returned when a snapshot document fails validation
var ErrInvalidSnapshot = errors.New("invalid catalog snapshot")

const snapshotSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entries"],
  "properties": {
    "entries": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "kind"],
        "properties": {
          "id":   {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "kind": {"enum": ["recipe", "product", "preparation", "supplier"]}
        }
      }
    },
    "recipes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "ingredients"],
        "properties": {
          "id":       {"type": "string", "minLength": 1},
          "portions": {"type": "integer", "minimum": 1},
          "ingredients": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["product_id", "quantity"],
              "properties": {
                "product_id": {"type": "string", "minLength": 1},
                "quantity":   {"type": ["number", "string"]},
                "unit":       {"type": "string"}
              }
            }
          }
        }
      }
    },
    "stock": {
      "type": "object",
      "additionalProperties": {"type": ["number", "string"]}
    }
  }
}`

var compileSnapshotSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("snapshot.json")
})

type snapshotDocument struct {
	Entries []Entry                    `json:"entries"`
	Recipes []Recipe                   `json:"recipes"`
	Stock   map[string]decimal.Decimal `json:"stock"`
}

// LoadSnapshot reads a JSON catalog document, validates it against the
// snapshot schema and builds a Snapshot from it.
func LoadSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	schema, err := compileSnapshotSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	var parsed snapshotDocument
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	return NewSnapshot(parsed.Entries, parsed.Recipes, parsed.Stock), nil
}
