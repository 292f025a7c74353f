// internal/filter/policy.go
package filter

// Action describes how a path's line endings are treated on the write path.
type Action int

const (
	// ActionGuess means no attribute decided; content heuristics and the
	// repository autocrlf mode take over.
	ActionGuess Action = iota
	// ActionBinary forbids any conversion.
	ActionBinary
	// ActionText forces conversion regardless of content.
	ActionText
	// ActionInput normalizes to LF on the way into the store only.
	ActionInput
	// ActionAuto converts when the content heuristics say it is safe.
	ActionAuto
	// ActionCRLF preserves or introduces CRLF; the store-bound direction
	// never strips under it.
	ActionCRLF
)

func (a Action) String() string {
	switch a {
	case ActionGuess:
		return "guess"
	case ActionBinary:
		return "binary"
	case ActionText:
		return "text"
	case ActionInput:
		return "input"
	case ActionAuto:
		return "auto"
	case ActionCRLF:
		return "crlf"
	}
	return "unknown"
}

// EOL is the per-path end-of-line preference from the eol attribute.
type EOL int

const (
	EOLUnset EOL = iota
	EOLLF
	EOLCRLF
)

func (e EOL) String() string {
	switch e {
	case EOLLF:
		return "lf"
	case EOLCRLF:
		return "crlf"
	}
	return "unset"
}

// Policy pairs the conversion action with the end-of-line preference for
// one path. It is a value type, frozen once resolved.
type Policy struct {
	Action Action
	EOL    EOL
}

// Effective folds the eol preference into the action. Binary always wins;
// an explicit lf preference forces input-only normalization, an explicit
// crlf preference forces the preserving action. Total over both domains.
func (p Policy) Effective() Action {
	if p.Action == ActionBinary {
		return ActionBinary
	}
	switch p.EOL {
	case EOLLF:
		return ActionInput
	case EOLCRLF:
		return ActionCRLF
	}
	return p.Action
}
