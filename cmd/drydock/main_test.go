package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"invalid input", usageErr(errors.New("unknown target")), exitUsage},
		{"partial failure", &exitCodeError{code: exitPartial, err: errors.New("one target failed")}, exitPartial},
		{"wrapped code survives", fmt.Errorf("deploy: %w", usageErr(errors.New("bad ref"))), exitUsage},
		{"operational failure defaults to failed", errors.New("open ledger: disk I/O error"), exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUsageArgsMarksArgErrors(t *testing.T) {
	check := usageArgs(cobra.ExactArgs(1))

	if err := check(nil, []string{"demo"}); err != nil {
		t.Fatalf("valid args: %v", err)
	}
	err := check(nil, nil)
	if err == nil {
		t.Fatal("missing args accepted")
	}
	if got := exitCode(err); got != exitUsage {
		t.Errorf("exitCode = %d, want %d", got, exitUsage)
	}
}
