package reconciler

import (
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/ownership"
)

func TestActionType_String(t *testing.T) {
	tests := []struct {
		action ActionType
		want   string
	}{
		{ActionCreate, "create"},
		{ActionUpdate, "update"},
		{ActionConvert, "convert"},
		{ActionDelete, "delete"},
		{ActionSkip, "skip"},
	}

	for _, tt := range tests {
		if got := string(tt.action); got != tt.want {
			t.Errorf("ActionType %v = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestAction_String(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{
			name: "successful option create",
			action: Action{
				Type:   ActionCreate,
				Status: StatusSuccess,
				Kind:   ownership.KindOption,
				Ref:    "dns-10-0-0-50",
				Detail: "'9.9.9.9'",
			},
			want: "[success] create option dns-10-0-0-50 ('9.9.9.9')",
		},
		{
			name: "failed lease create has no id",
			action: Action{
				Type:   ActionCreate,
				Status: StatusFailed,
				Kind:   ownership.KindLease,
				Error:  "device rejected command",
			},
			want: "[failed] create lease (new): device rejected command",
		},
		{
			name: "dry-run delete",
			action: Action{
				Type:   ActionDelete,
				Status: StatusSuccess,
				Kind:   ownership.KindLease,
				Ref:    "*1A",
				DryRun: true,
			},
			want: "[dry-run] delete lease *1A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.String(); got != tt.want {
				t.Errorf("Action.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewResult(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.50", false)

	if result.DryRun {
		t.Error("NewResult(false) should have DryRun=false")
	}
	if result.Client != "10.0.0.50" || result.Operation != OperationApply {
		t.Errorf("unexpected identity %s %s", result.Operation, result.Client)
	}
	if result.StartTime.IsZero() {
		t.Error("NewResult should set StartTime")
	}
	if result.Actions == nil {
		t.Error("NewResult should initialize Actions slice")
	}

	if !NewResult(OperationRevert, "10.0.0.50", true).DryRun {
		t.Error("NewResult(true) should have DryRun=true")
	}
}

func TestResult_Complete(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.50", false)
	time.Sleep(10 * time.Millisecond)
	result.Complete()

	if result.EndTime.IsZero() {
		t.Error("Complete() should set EndTime")
	}
	if result.Duration() < 10*time.Millisecond {
		t.Errorf("Duration() = %v, want >= 10ms", result.Duration())
	}
}

func TestResult_AddAction(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.50", true)

	result.AddAction(Action{Type: ActionCreate, Status: StatusSuccess, Kind: ownership.KindOption})

	if len(result.Actions) != 1 {
		t.Fatalf("AddAction: got %d actions, want 1", len(result.Actions))
	}
	if !result.Actions[0].DryRun {
		t.Error("AddAction should set DryRun flag on action")
	}
}

func TestResult_Filtering(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.60", false)

	result.AddAction(Action{Type: ActionCreate, Status: StatusSuccess, Kind: ownership.KindOption})
	result.AddAction(Action{Type: ActionCreate, Status: StatusSuccess, Kind: ownership.KindLease})
	result.AddAction(Action{Type: ActionConvert, Status: StatusSuccess, Kind: ownership.KindLease})
	result.AddAction(Action{Type: ActionUpdate, Status: StatusFailed, Kind: ownership.KindLease, Error: "error"})
	result.AddAction(Action{Type: ActionDelete, Status: StatusSuccess, Kind: ownership.KindOption})
	result.AddAction(Action{Type: ActionSkip, Status: StatusSkipped, Kind: ownership.KindLease})

	tests := []struct {
		name string
		fn   func() []Action
		want int
	}{
		{"Created", result.Created, 2},
		{"Updated", result.Updated, 1},
		{"Deleted", result.Deleted, 1},
		{"Failed", result.Failed, 1},
		{"Skipped", result.Skipped, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.fn()); got != tt.want {
				t.Errorf("%s() returned %d actions, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestResult_Changed(t *testing.T) {
	result := NewResult(OperationRevert, "10.0.0.80", false)
	result.AddAction(Action{Type: ActionSkip, Status: StatusSkipped, Kind: ownership.KindLease})
	if result.Changed() {
		t.Error("skip-only result should not report a change")
	}

	result.AddAction(Action{Type: ActionDelete, Status: StatusSuccess, Kind: ownership.KindLease})
	if !result.Changed() {
		t.Error("delete should report a change")
	}
}

func TestResult_HasErrors(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.50", false)

	if result.HasErrors() {
		t.Error("Empty result should not have errors")
	}

	result.AddAction(Action{Type: ActionCreate, Status: StatusFailed, Error: "error"})
	if !result.HasErrors() {
		t.Error("Result with failures should have errors")
	}
}

func TestResult_Summary(t *testing.T) {
	result := NewResult(OperationApply, "10.0.0.50", false)
	result.AddAction(Action{Type: ActionCreate, Status: StatusSuccess, Kind: ownership.KindOption, Ref: "dns-10-0-0-50"})
	result.AddAction(Action{Type: ActionSkip, Status: StatusSkipped, Kind: ownership.KindLease, Ref: "*1"})
	result.AddAction(Action{Type: ActionUpdate, Status: StatusFailed, Kind: ownership.KindLease, Ref: "*2", Error: "connection refused"})
	result.Complete()

	summary := result.Summary()

	for _, want := range []string{
		"apply 10.0.0.50 complete (applied)",
		"Records created: 1",
		"Skipped: 1",
		"Failed: 1",
		"lease *2",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary missing %q:\n%s", want, summary)
		}
	}
}

func TestResult_Summary_DryRun(t *testing.T) {
	result := NewResult(OperationRevert, "10.0.0.50", true)
	result.Complete()

	if !strings.Contains(result.Summary(), "dry-run") {
		t.Error("Dry-run summary should mention 'dry-run'")
	}
}
