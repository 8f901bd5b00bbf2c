package batch

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/Srjnnnn/blendgate/pkg/command"
)

func TestEntryUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Entry
		always  bool
		wantErr bool
	}{
		{
			name:   "bare command",
			in:     `{"command":"snapshot_scene"}`,
			want:   Entry{Request: command.Request{Name: "snapshot_scene"}},
			always: true,
		},
		{
			name: "command with params",
			in:   `{"command":"add_object","params":{"kind":"cube","name":"Box"}}`,
			want: Entry{Request: command.Request{
				Name:   "add_object",
				Params: map[string]interface{}{"kind": "cube", "name": "Box"},
			}},
			always: true,
		},
		{
			name: "conditional entry",
			in:   `{"command":"set_material","params":{"object":"Box"},"condition":{"depends_on":[0,1],"mode":"any_success"}}`,
			want: Entry{
				Request: command.Request{
					Name:   "set_material",
					Params: map[string]interface{}{"object": "Box"},
				},
				Condition: Condition{DependsOn: []int{0, 1}, Mode: AnySuccess},
			},
		},
		{
			name: "condition without mode",
			in:   `{"command":"render","condition":{"depends_on":[2]}}`,
			want: Entry{
				Request:   command.Request{Name: "render"},
				Condition: Condition{DependsOn: []int{2}},
			},
		},
		{
			name:    "malformed",
			in:      `{"command":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Entry
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got.Request, tt.want.Request) {
				t.Fatalf("request = %+v, want %+v", got.Request, tt.want.Request)
			}
			if !reflect.DeepEqual(got.Condition, tt.want.Condition) {
				t.Fatalf("condition = %+v, want %+v", got.Condition, tt.want.Condition)
			}
			if got.Condition.IsAlways() != tt.always {
				t.Fatalf("IsAlways = %v, want %v", got.Condition.IsAlways(), tt.always)
			}
		})
	}
}

func TestEntryMarshalOmitsAlwaysCondition(t *testing.T) {
	e := Entry{Request: command.Request{
		Name:   "add_object",
		Params: map[string]interface{}{"kind": "cube"},
	}}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, present := m["condition"]; present {
		t.Fatalf("always condition serialized: %s", b)
	}
	if m["command"] != "add_object" {
		t.Fatalf("command = %v", m["command"])
	}
}

func TestEntryMarshalRoundTrip(t *testing.T) {
	in := Entry{
		Request: command.Request{
			Name:   "delete_object",
			Params: map[string]interface{}{"name": "Box"},
		},
		Condition: Condition{DependsOn: []int{0}, Mode: AllSuccess},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out Entry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in.Request, out.Request) || !reflect.DeepEqual(in.Condition, out.Condition) {
		t.Fatalf("round trip changed entry: %+v -> %+v", in, out)
	}
}

func TestValidateEntries(t *testing.T) {
	ok := func(name string, cond Condition) Entry {
		return Entry{Request: command.Request{Name: name}, Condition: cond}
	}

	tests := []struct {
		name    string
		entries []Entry
		wantErr bool
	}{
		{"empty", nil, true},
		{"single unconditional", []Entry{ok("a", Condition{})}, false},
		{"backward reference", []Entry{
			ok("a", Condition{}),
			ok("b", Condition{DependsOn: []int{0}}),
		}, false},
		{"self reference", []Entry{
			ok("a", Condition{DependsOn: []int{0}}),
		}, true},
		{"forward reference", []Entry{
			ok("a", Condition{DependsOn: []int{1}}),
			ok("b", Condition{}),
		}, true},
		{"negative reference", []Entry{
			ok("a", Condition{}),
			ok("b", Condition{DependsOn: []int{-1}}),
		}, true},
		{"unknown mode", []Entry{
			ok("a", Condition{}),
			ok("b", Condition{DependsOn: []int{0}, Mode: "some_success"}),
		}, true},
		{"both modes accepted", []Entry{
			ok("a", Condition{}),
			ok("b", Condition{DependsOn: []int{0}, Mode: AnySuccess}),
			ok("c", Condition{DependsOn: []int{0, 1}, Mode: AllSuccess}),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntries(tt.entries)
			if tt.wantErr {
				ce, isCmdErr := command.AsError(err)
				if !isCmdErr || ce.Kind != command.KindBatchValidationError {
					t.Fatalf("got %v, want BatchValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateEntries: %v", err)
			}
		})
	}
}

func TestResultWireShape(t *testing.T) {
	r := &Result{
		BatchID:    "b-42",
		Status:     StatusCompleted,
		Total:      4,
		Successful: 1,
		Failed:     1,
		Entries: []EntryResult{
			{
				Index: 0,
				State: StateExecuted,
				Outcome: &command.Outcome{
					Success: true,
					Result:  map[string]interface{}{"name": "Cube_001"},
				},
				Rollback: &RollbackReport{Reverted: true},
			},
			{
				Index: 1,
				State: StateExecuted,
				Outcome: &command.Outcome{
					Success: false,
					Error:   command.NewError(command.KindBackendError, "object vanished"),
				},
			},
			{Index: 2, State: StateSkipped},
			// Index 3 never ran and is deliberately absent from Entries.
		},
	}

	w := r.Wire()
	if w["batch_id"] != "b-42" || w["total_commands"] != 4 {
		t.Fatalf("header = %v", w)
	}
	if w["successful"] != 1 || w["failed"] != 1 {
		t.Fatalf("tallies = %v/%v", w["successful"], w["failed"])
	}

	results := w["results"].([]map[string]interface{})
	if len(results) != 3 {
		t.Fatalf("results len = %d, want 3 (unrun entries omitted)", len(results))
	}

	first := results[0]
	if first["batch_index"] != 0 || first["success"] != true {
		t.Fatalf("first = %v", first)
	}
	if _, hasErr := first["error"]; hasErr {
		t.Fatal("successful entry carries error")
	}
	rb := first["rollback"].(map[string]interface{})
	if rb["reverted"] != true {
		t.Fatalf("rollback = %v", rb)
	}

	second := results[1]
	if second["success"] != false {
		t.Fatalf("second = %v", second)
	}
	if _, hasResult := second["result"]; hasResult {
		t.Fatal("failed entry carries result")
	}
	se := second["error"].(map[string]interface{})
	if se["kind"] != string(command.KindBackendError) || se["message"] != "object vanished" {
		t.Fatalf("second error = %v", se)
	}

	third := results[2]
	if third["batch_index"] != 2 || third["state"] != string(StateSkipped) {
		t.Fatalf("third = %v", third)
	}
	if _, hasSuccess := third["success"]; hasSuccess {
		t.Fatal("skipped entry carries success flag")
	}

	// The wire form must survive JSON encoding untouched.
	if _, err := json.Marshal(w); err != nil {
		t.Fatalf("Marshal: %v", err)
	}
}
