package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/Srjnnnn/blendgate/pkg/command"
	"github.com/Srjnnnn/blendgate/pkg/script"
)

// Script runs Lua source inside the sandboxed engine. The trust context
// decides which scene verbs the code may touch; the engine's step budget
// and the executor deadline both bound runtime.
type Script struct {
	engine *script.Engine
}

func NewScript(engine *script.Engine) *Script {
	return &Script{engine: engine}
}

func (h *Script) Name() string { return "script" }

func (h *Script) Contract() *command.Contract {
	return &command.Contract{
		Name:        "script",
		Description: "Run a Lua script in the scene sandbox",
		Params: []command.ParamSpec{
			{Key: "code", Type: command.TypeString, Required: true},
			{Key: "context", Type: command.TypeString, Default: script.ContextSafe,
				Enum: []string{script.ContextSafe, script.ContextRestricted, script.ContextFull}},
		},
	}
}

func (h *Script) Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	res, err := h.engine.Run(ctx, str(params, "code"), str(params, "context"))
	if err != nil {
		if errors.Is(err, script.ErrFullDisabled) {
			return nil, command.NewError(command.KindInvalidParameter, "parameter context: %s", err.Error())
		}
		return nil, err
	}

	result := map[string]interface{}{
		"output": strings.Join(res.Output, "\n"),
	}
	if res.Globals != nil {
		result["globals"] = res.Globals
	}
	return result, nil
}
