package channels

import (
	"context"
	"encoding/json"

	"github.com/Srjnnnn/blendgate/pkg/batch"
	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/gateway"
)

// batchEnvelope is the wire shape of a batch request.
type batchEnvelope struct {
	Batch   []batch.Entry `json:"batch"`
	Options batch.Options `json:"options"`
}

// submitResponse renders the batch-accepted wire shape.
func submitResponse(id string, total int) map[string]interface{} {
	return map[string]interface{}{
		"batch_id":       id,
		"status":         string(batch.StatusPending),
		"total_commands": total,
	}
}

// outcomeWire renders a single-command outcome as its wire map.
func outcomeWire(out command.Outcome) map[string]interface{} {
	m := map[string]interface{}{"success": out.Success}
	if out.Success {
		m["result"] = out.Result
	} else {
		m["error"] = map[string]interface{}{
			"kind":    string(out.Error.Kind),
			"message": out.Error.Message,
		}
	}
	return m
}

// dispatchEnvelope routes one raw request envelope to the gateway by its
// distinguishing key, checked in the fixed order batch, template,
// ai_query, command. Returns the wire response on success; submission
// failures (bad JSON, batch validation, unknown template) come back as an
// error for the channel to frame.
func dispatchEnvelope(ctx context.Context, gw *gateway.Gateway, raw []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, command.NewError(command.KindInvalidParameter, "malformed JSON: %s", err.Error())
	}

	switch {
	case doc["batch"] != nil:
		var env batchEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, command.NewError(command.KindInvalidParameter, "malformed batch: %s", err.Error())
		}
		id, err := gw.SubmitBatch(ctx, env.Batch, env.Options)
		if err != nil {
			return nil, err
		}
		return submitResponse(id, len(env.Batch)), nil

	case doc["template"] != nil:
		name, ok := doc["template"].(string)
		if !ok {
			return nil, command.NewError(command.KindInvalidParameter, "template must be a string")
		}
		params, _ := doc["params"].(map[string]interface{})
		id, err := gw.ApplyTemplate(ctx, name, params)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"batch_id": id,
			"status":   string(batch.StatusPending),
			"template": name,
		}, nil

	case doc["ai_query"] != nil:
		text, ok := doc["ai_query"].(string)
		if !ok {
			return nil, command.NewError(command.KindInvalidParameter, "ai_query must be a string")
		}
		return outcomeWire(gw.Query(ctx, text)), nil

	case doc["command"] != nil:
		var req command.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, command.NewError(command.KindInvalidParameter, "malformed command: %s", err.Error())
		}
		return outcomeWire(gw.SubmitCommand(ctx, req)), nil
	}

	return nil, command.NewError(command.KindInvalidParameter,
		"envelope must contain one of: batch, template, ai_query, command")
}
