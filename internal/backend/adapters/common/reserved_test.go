package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeAndValidateEmptyInput(t *testing.T) {
	tokens, err := TokenizeAndValidate("  ", []string{"--port"})
	require.NoError(t, err)
	require.Nil(t, tokens)
}

func TestTokenizeAndValidateSplitsQuotedArguments(t *testing.T) {
	tokens, err := TokenizeAndValidate(`--alias "my model" --temp 0.7`, []string{"--port"})
	require.NoError(t, err)
	require.Equal(t, []string{"--alias", "my model", "--temp", "0.7"}, tokens)
}

func TestTokenizeAndValidateRejectsReservedFlag(t *testing.T) {
	_, err := TokenizeAndValidate("--port 9000", []string{"--port", "--model"})
	require.Error(t, err)
}

func TestTokenizeAndValidateRejectsReservedFlagWithEquals(t *testing.T) {
	_, err := TokenizeAndValidate("--ctx-size=8192", []string{"--ctx-size"})
	require.Error(t, err)
}

func TestTokenizeAndValidateRejectsMalformedQuoting(t *testing.T) {
	_, err := TokenizeAndValidate(`--alias "unterminated`, []string{"--port"})
	require.Error(t, err)
}
