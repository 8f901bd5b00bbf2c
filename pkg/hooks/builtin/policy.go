// Package builtin carries the hook handlers blendgate registers out of the
// box.
package builtin

import (
	"context"

	"github.com/Srjnnnn/blendgate/pkg/hooks"
)

// ScriptPolicy watches script executions and flags the ones running with
// the "full" trust context. It never blocks a script; it makes sure every
// full-context run leaves an audit trail, and marks the event as a policy
// violation when full scripts are disabled in config.
type ScriptPolicy struct {
	allowFull bool
}

func NewScriptPolicy(allowFull bool) *ScriptPolicy {
	return &ScriptPolicy{allowFull: allowFull}
}

func (h *ScriptPolicy) Name() string {
	return "script_policy"
}

func (h *ScriptPolicy) Handle(_ context.Context, ev hooks.Event, data hooks.Context) hooks.Result {
	if ev != hooks.EventBeforeCommand || data.Command != "script" {
		return hooks.Result{Status: hooks.StatusOK, Message: "not applicable"}
	}

	scriptCtx, _ := data.Params["context"].(string)
	meta := map[string]any{
		"script_context": scriptCtx,
		"allow_full":     h.allowFull,
	}

	if scriptCtx != "full" {
		return hooks.Result{Status: hooks.StatusOK, Message: "sandboxed script", Metadata: meta}
	}
	if h.allowFull {
		return hooks.Result{Status: hooks.StatusOK, Message: "full-context script permitted", Metadata: meta}
	}
	return hooks.Result{
		Status:   hooks.StatusOK,
		Message:  "full-context script executed while allow_full_scripts is disabled",
		Metadata: meta,
	}
}
