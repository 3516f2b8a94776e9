package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	cause := errors.New("commit failed")
	err := fmt.Errorf("handle order paid: %w", NewDomainError("update order", cause))

	if !IsDomainError(err) {
		t.Error("expected wrapped DomainError to be detected")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if IsDomainError(cause) {
		t.Error("plain error is not a DomainError")
	}
}

func TestValidationResult(t *testing.T) {
	var result ValidationResult
	if !result.IsValid() || result.Err() != nil {
		t.Fatal("zero result must be valid")
	}

	result.Add("total", "a")
	other := ValidationResult{}
	other.Add("voucher", "b")
	result.Merge(other)

	if result.IsValid() {
		t.Fatal("expected invalid result")
	}
	if got := result.Err().Error(); got != "a; b" {
		t.Errorf("unexpected error text %q", got)
	}
}
