package api

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const submitSchemaURL = "https://notary.schemas.local/api/signed-invocation.schema.json"

// submitSchema bounds the commitment only loosely; its exact size is checked
// by the notary so clients see the coded error.
const submitSchema = `{
  "type": "object",
  "required": ["payload", "submitter_sig", "slot_sig"],
  "additionalProperties": false,
  "properties": {
    "payload": {
      "type": "object",
      "required": ["commitment", "authority", "slot", "submitter", "nonce"],
      "additionalProperties": false,
      "properties": {
        "commitment": {"type": "string", "maxLength": 2050, "pattern": "^(0x)?([0-9a-fA-F]{2})*$"},
        "authority": {"$ref": "#/$defs/key"},
        "slot": {"$ref": "#/$defs/key"},
        "submitter": {"$ref": "#/$defs/key"},
        "nonce": {"type": "string", "minLength": 1, "maxLength": 128}
      }
    },
    "submitter_sig": {"$ref": "#/$defs/sig"},
    "slot_sig": {"$ref": "#/$defs/sig"}
  },
  "$defs": {
    "key": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$"},
    "sig": {"type": "string", "pattern": "^[0-9a-fA-F]{128}$"}
  }
}`

func compileSubmitSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(submitSchemaURL, strings.NewReader(submitSchema)); err != nil {
		return nil, fmt.Errorf("submit schema load failed: %w", err)
	}
	compiled, err := c.Compile(submitSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("submit schema compile failed: %w", err)
	}
	return compiled, nil
}
