package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFromStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{429, true}, {500, true}, {502, true}, {503, true},
		{400, false}, {401, false}, {403, false}, {404, false},
	}
	for _, c := range cases {
		err := FromStatus("test", c.status)
		if got := IsTransient(err); got != c.transient {
			t.Errorf("IsTransient(FromStatus(%d)) = %v, want %v", c.status, got, c.transient)
		}
	}
}

func TestIsTransientWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Transient("fetch", errors.New("reset")))
	if !IsTransient(err) {
		t.Error("wrapped transient error not detected")
	}

	err = fmt.Errorf("outer: %w", Permanent("fetch", errors.New("bad request")))
	if IsTransient(err) {
		t.Error("wrapped permanent error classified transient")
	}
}

func TestIsTransientContext(t *testing.T) {
	if IsTransient(context.Canceled) {
		t.Error("cancellation must not be retried")
	}
	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline expiry should be retryable")
	}
	if IsTransient(nil) {
		t.Error("nil error is not transient")
	}
}

func TestSchemaErrorRetainsRaw(t *testing.T) {
	se := &SchemaError{Reason: "missing grades", Raw: "free-form reply"}
	var target *SchemaError
	if !errors.As(fmt.Errorf("wrap: %w", se), &target) {
		t.Fatal("SchemaError not matchable with errors.As")
	}
	if target.Raw != "free-form reply" {
		t.Errorf("raw text lost: %q", target.Raw)
	}
}
