// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the policy file schema.
const SchemaID = "https://holomush.dev/schemas/warden-policy.schema.json"

// GenerateSchema generates a JSON Schema from the PolicyFile struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&PolicyFile{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Warden Access Policy"
	schema.Description = "Schema for warden policy.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("POLICY_SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

// compiledSchema is built once from GenerateSchema.
var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("POLICY_SCHEMA_FAILED").With("operation", "parse schema").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("policy.schema.json", doc); err != nil {
		return nil, oops.Code("POLICY_SCHEMA_FAILED").With("operation", "add schema resource").Wrap(err)
	}
	sch, err := c.Compile("policy.schema.json")
	if err != nil {
		return nil, oops.Code("POLICY_SCHEMA_FAILED").With("operation", "compile schema").Wrap(err)
	}
	return sch, nil
})

// ValidateSchema validates YAML policy data against the generated schema.
func ValidateSchema(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code("POLICY_INVALID").Errorf("policy data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("POLICY_INVALID").With("operation", "parse yaml").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("POLICY_INVALID").With("operation", "validate schema").Wrap(err)
	}
	return nil
}

// LoadPolicy reads, validates and compiles a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, oops.Code("POLICY_READ_FAILED").With("path", path).Wrap(err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return p, nil
}

// ParsePolicy validates and compiles YAML policy data.
func ParsePolicy(data []byte) (*Policy, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code("POLICY_INVALID").With("operation", "decode policy").Wrap(err)
	}
	return NewPolicy(f)
}

// toJSONTypes converts yaml.v3 output into the value types the schema
// validator expects. Numbers become json.Number.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONTypes(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = toJSONTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONTypes(item)
		}
		return out
	case int:
		return json.Number(strconv.Itoa(val))
	case int64:
		return json.Number(strconv.FormatInt(val, 10))
	case uint64:
		return json.Number(strconv.FormatUint(val, 10))
	case float64:
		return json.Number(strconv.FormatFloat(val, 'g', -1, 64))
	default:
		return val
	}
}
