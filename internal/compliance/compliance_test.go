package compliance

import (
	"context"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"PASS", StatusPass},
		{"pass", StatusPass},
		{"  Pass ", StatusPass},
		{"WARN", StatusWarn},
		{"FAIL", StatusFail},
		{"ERROR", StatusError},
		{"NEEDS_API", StatusNeedsAPI},
		{"needs_api", StatusNeedsAPI},
		{"", StatusUnknown},
		{"SOMETHING_ELSE", StatusUnknown},
		{"PASSED", StatusUnknown},
	}

	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStore_ChecksFor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	checks, err := store.ChecksFor(ctx, 1)
	if err != nil {
		t.Fatalf("checks for empty store: %v", err)
	}
	if len(checks) != 0 {
		t.Errorf("empty store returned %d checks", len(checks))
	}

	store.Record(1, CheckArithmetic, StatusPass, nil)
	store.Record(1, CheckGSTVendor, StatusWarn, []byte(`{"reason":"filing overdue"}`))
	store.Record(2, CheckArithmetic, StatusFail, nil)

	checks, err = store.ChecksFor(ctx, 1)
	if err != nil {
		t.Fatalf("checks for: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(checks))
	}
	if checks[CheckArithmetic].Status != StatusPass {
		t.Errorf("arithmetic status = %s", checks[CheckArithmetic].Status)
	}
	if string(checks[CheckGSTVendor].Details) != `{"reason":"filing overdue"}` {
		t.Errorf("details = %s", checks[CheckGSTVendor].Details)
	}
	if _, ok := checks[CheckHSNRate]; ok {
		t.Error("absent check type should be absent from the map")
	}
}

func TestMemoryStore_LatestWins(t *testing.T) {
	store := NewMemoryStore()

	store.Record(1, CheckHSNRate, StatusFail, nil)
	store.Record(1, CheckHSNRate, StatusPass, nil)

	checks, err := store.ChecksFor(context.Background(), 1)
	if err != nil {
		t.Fatalf("checks for: %v", err)
	}
	if checks[CheckHSNRate].Status != StatusPass {
		t.Errorf("status = %s, want the most recent PASS", checks[CheckHSNRate].Status)
	}
}
