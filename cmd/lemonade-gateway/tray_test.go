package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrayCmdReportsNotImplemented(t *testing.T) {
	cmd := newTrayCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not built into lemonade-gateway")
}
