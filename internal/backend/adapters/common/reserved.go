// Package common holds the argument-tokenization and validation helpers
// shared across the per-recipe backend adapters.
package common

import (
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// TokenizeAndValidate splits a user-supplied free-form argument string the
// way a shell would (honoring quotes), then rejects any token matching one
// of the gateway-reserved flags the adapter itself controls (model path,
// port, context size, ...). Reserved flags are compared case-sensitively
// and match both "--flag" and "--flag=value" forms.
func TokenizeAndValidate(raw string, reserved []string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse runtime arguments: %w", err)
	}
	for _, tok := range tokens {
		name := tok
		if i := strings.IndexByte(tok, '='); i >= 0 {
			name = tok[:i]
		}
		for _, r := range reserved {
			if name == r {
				return nil, fmt.Errorf("runtime argument %q is reserved and cannot be overridden", name)
			}
		}
	}
	return tokens, nil
}
