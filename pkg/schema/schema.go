// Package schema validates request envelopes against the embedded JSON
// Schema before they reach the gateway. The file watcher runs every
// dropped file through it; the validate CLI subcommand exposes the same
// check to users.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Srjnnnn/blendgate/pkg/command"
)

//go:embed envelope.schema.json
var envelopeSource string

var envelope = jsonschema.MustCompileString("envelope.schema.json", envelopeSource)

// ValidateEnvelope checks one decoded request envelope. The document must
// come from encoding/json (numbers as float64). Violations surface as
// InvalidParameter errors naming the failing location.
func ValidateEnvelope(doc interface{}) error {
	err := envelope.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := deepestCause(ve)
		if leaf.InstanceLocation == "" {
			return command.NewError(command.KindInvalidParameter, "envelope: %s", leaf.Message)
		}
		return command.NewError(command.KindInvalidParameter, "envelope at %s: %s", leaf.InstanceLocation, leaf.Message)
	}
	return command.NewError(command.KindInvalidParameter, "envelope: %s", err.Error())
}

// ParseEnvelope decodes raw JSON and validates it in one step, returning
// the decoded envelope on success.
func ParseEnvelope(raw []byte) (map[string]interface{}, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, command.NewError(command.KindInvalidParameter, "envelope: %s", err.Error())
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, command.NewError(command.KindInvalidParameter, "envelope: expected a JSON object, got %s", jsonType(doc))
	}
	if err := ValidateEnvelope(doc); err != nil {
		return nil, err
	}
	return obj, nil
}

// deepestCause walks the cause tree toward the most specific instance
// location, which reads far better than the root "doesn't validate" line.
func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return ve
	}
	best := deepestCause(ve.Causes[0])
	for _, c := range ve.Causes[1:] {
		if leaf := deepestCause(c); len(leaf.InstanceLocation) > len(best.InstanceLocation) {
			best = leaf
		}
	}
	return best
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
