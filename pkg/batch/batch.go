// Package batch executes ordered lists of commands as one tracked unit:
// per-entry dependency conditions, stop-on-error and best-effort rollback
// policies, and a pollable result that grows monotonically while the batch
// runs.
package batch

import (
	"encoding/json"
	"time"

	"github.com/Srjnnnn/blendgate/pkg/command"
)

// Mode selects how a DependsOn condition aggregates its referenced
// outcomes. The string values are part of the wire contract.
type Mode string

const (
	AllSuccess Mode = "all_success"
	AnySuccess Mode = "any_success"
)

// Condition gates one batch entry on the outcomes of earlier entries. The
// zero Condition is Always: the entry runs unconditionally.
type Condition struct {
	DependsOn []int `json:"depends_on,omitempty"`
	Mode      Mode  `json:"mode,omitempty"`
}

// IsAlways reports whether the condition gates on nothing.
func (c Condition) IsAlways() bool { return len(c.DependsOn) == 0 }

// effectiveMode defaults an unset mode to AllSuccess.
func (c Condition) effectiveMode() Mode {
	if c.Mode == "" {
		return AllSuccess
	}
	return c.Mode
}

// Entry is one command in a batch. Index always equals the entry's
// position in submission order; the coordinator assigns it and ignores any
// caller-provided value.
type Entry struct {
	Request   command.Request
	Condition Condition
	Index     int
}

// wireEntry is the JSON face of an Entry: {"command", "params",
// "condition"?}.
type wireEntry struct {
	Command   string                 `json:"command"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Condition *Condition             `json:"condition,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Command: e.Request.Name, Params: e.Request.Params}
	if !e.Condition.IsAlways() || e.Condition.Mode != "" {
		cond := e.Condition
		w.Condition = &cond
	}
	return json.Marshal(w)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Request = command.Request{Name: w.Command, Params: w.Params}
	if w.Condition != nil {
		e.Condition = *w.Condition
	} else {
		e.Condition = Condition{}
	}
	return nil
}

// Options are the batch-level execution policies. Field names follow the
// wire contract.
type Options struct {
	StopOnError       bool `json:"stop_on_error,omitempty"`
	RollbackOnFailure bool `json:"rollback_on_failure,omitempty"`
}

// Status is the batch lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// EntryState distinguishes why an entry does or does not carry an outcome:
// executed entries ran, skipped entries failed their condition, unrun
// entries were never attempted because the batch halted or was cancelled
// first.
type EntryState string

const (
	StateExecuted EntryState = "executed"
	StateSkipped  EntryState = "skipped"
	StateUnrun    EntryState = "unrun"
)

// RollbackReport records one compensation attempt against a successfully
// executed entry.
type RollbackReport struct {
	Reverted bool           `json:"reverted"`
	Error    *command.Error `json:"error,omitempty"`
}

// EntryResult is the recorded terminal state of one entry. Outcome is nil
// for skipped entries. Once appended to a Result it never changes, with
// the single exception of the Rollback report added during compensation.
type EntryResult struct {
	Index    int              `json:"index"`
	Command  string           `json:"command,omitempty"`
	State    EntryState       `json:"state"`
	Outcome  *command.Outcome `json:"outcome,omitempty"`
	Rollback *RollbackReport  `json:"rollback,omitempty"`
}

// Result is the pollable state of one batch. The coordinator is its only
// writer; everyone else sees deep copies from the store.
type Result struct {
	BatchID     string        `json:"batch_id"`
	Status      Status        `json:"status"`
	Total       int           `json:"total"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Entries     []EntryResult `json:"entries"`
	Options     Options       `json:"options"`
	SubmittedAt time.Time     `json:"submitted_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}

// Wire renders the canonical poll response: {batch_id, status,
// total_commands, successful, failed, results}. Executed entries carry
// success and result|error; skipped entries carry a state marker; unrun
// entries do not appear.
func (r *Result) Wire() map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(r.Entries))
	for _, er := range r.Entries {
		switch er.State {
		case StateSkipped:
			results = append(results, map[string]interface{}{
				"batch_index": er.Index,
				"state":       string(StateSkipped),
			})
		case StateExecuted:
			m := map[string]interface{}{
				"batch_index": er.Index,
				"success":     er.Outcome.Success,
			}
			if er.Outcome.Success {
				m["result"] = er.Outcome.Result
			} else {
				m["error"] = map[string]interface{}{
					"kind":    string(er.Outcome.Error.Kind),
					"message": er.Outcome.Error.Message,
				}
			}
			if er.Rollback != nil {
				rb := map[string]interface{}{"reverted": er.Rollback.Reverted}
				if er.Rollback.Error != nil {
					rb["error"] = map[string]interface{}{
						"kind":    string(er.Rollback.Error.Kind),
						"message": er.Rollback.Error.Message,
					}
				}
				m["rollback"] = rb
			}
			results = append(results, m)
		}
	}
	return map[string]interface{}{
		"batch_id":       r.BatchID,
		"status":         string(r.Status),
		"total_commands": r.Total,
		"successful":     r.Successful,
		"failed":         r.Failed,
		"results":        results,
	}
}

// ValidateEntries enforces the structural rules a batch must satisfy
// before any command runs: dependency references point strictly backwards
// and condition modes are known. A violation fails the whole batch with a
// BatchValidationError and no batch id is issued.
func ValidateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return command.NewError(command.KindBatchValidationError, "batch is empty")
	}
	for i := range entries {
		cond := entries[i].Condition
		switch cond.Mode {
		case "", AllSuccess, AnySuccess:
		default:
			return command.NewError(command.KindBatchValidationError,
				"entry %d: unknown condition mode %q", i, cond.Mode)
		}
		for _, dep := range cond.DependsOn {
			if dep < 0 {
				return command.NewError(command.KindBatchValidationError,
					"entry %d: negative dependency index %d", i, dep)
			}
			if dep >= i {
				return command.NewError(command.KindBatchValidationError,
					"entry %d: dependency %d is not an earlier entry", i, dep)
			}
		}
	}
	return nil
}

func copyResult(r *Result) *Result {
	out := *r
	out.Entries = make([]EntryResult, len(r.Entries))
	for i, er := range r.Entries {
		ce := er
		if er.Outcome != nil {
			oc := *er.Outcome
			oc.Result = command.CopyParams(er.Outcome.Result)
			if er.Outcome.Error != nil {
				e := *er.Outcome.Error
				oc.Error = &e
			}
			ce.Outcome = &oc
		}
		if er.Rollback != nil {
			rb := *er.Rollback
			if er.Rollback.Error != nil {
				e := *er.Rollback.Error
				rb.Error = &e
			}
			ce.Rollback = &rb
		}
		out.Entries[i] = ce
	}
	return &out
}
