package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveFold(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   Action
	}{
		{"binary wins over lf", Policy{ActionBinary, EOLLF}, ActionBinary},
		{"binary wins over crlf", Policy{ActionBinary, EOLCRLF}, ActionBinary},
		{"binary unset", Policy{ActionBinary, EOLUnset}, ActionBinary},
		{"lf forces input", Policy{ActionText, EOLLF}, ActionInput},
		{"crlf forces crlf", Policy{ActionText, EOLCRLF}, ActionCRLF},
		{"guess with lf", Policy{ActionGuess, EOLLF}, ActionInput},
		{"unset keeps action", Policy{ActionAuto, EOLUnset}, ActionAuto},
		{"input unchanged", Policy{ActionInput, EOLUnset}, ActionInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Effective())
		})
	}
}

// Every action/eol combination must fold to exactly one defined action,
// with binary dominating any eol preference.
func TestEffectiveFoldTotal(t *testing.T) {
	actions := []Action{ActionGuess, ActionBinary, ActionText, ActionInput, ActionAuto, ActionCRLF}
	eols := []EOL{EOLUnset, EOLLF, EOLCRLF}

	for _, action := range actions {
		for _, eol := range eols {
			got := Policy{Action: action, EOL: eol}.Effective()
			assert.Contains(t, actions, got,
				"fold of (%s, %s) must land on a defined action", action, eol)
			if action == ActionBinary {
				assert.Equal(t, ActionBinary, got,
					"binary must dominate eol preference %s", eol)
			}
		}
	}
}
