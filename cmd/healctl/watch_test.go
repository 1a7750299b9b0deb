package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRunWatchRequiresPolicyFlag(t *testing.T) {
	oldPath := policyPath
	policyPath = ""
	defer func() { policyPath = oldPath }()

	if err := runWatch(&cobra.Command{}, nil); err == nil {
		t.Fatalf("expected an error when --policy is unset")
	}
}
