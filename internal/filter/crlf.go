// internal/filter/crlf.go
package filter

import (
	"errors"
	"fmt"

	"silo/internal/attr"
	"silo/internal/config"
	"silo/internal/textstat"
)

// The three attribute names that decide line-ending conversion, queried
// in this order.
var convAttrs = []string{"crlf", "eol", "text"}

func checkCRLF(v attr.Value) Action {
	if v.IsTrue() {
		return ActionText
	}
	if v.IsFalse() {
		return ActionBinary
	}
	if s, ok := v.Text(); ok {
		switch s {
		case "input":
			return ActionInput
		case "auto":
			return ActionAuto
		}
	}
	return ActionGuess
}

func checkEOL(v attr.Value) EOL {
	if s, ok := v.Text(); ok {
		switch s {
		case "lf":
			return EOLLF
		case "crlf":
			return EOLCRLF
		}
	}
	return EOLUnset
}

// ResolvePolicy queries the crlf, eol and text attributes for path and
// maps them onto a policy. The text attribute wins; crlf is the fallback
// when text decides nothing. A path with no attributes at all resolves to
// the guess default, which is success, not an error.
func ResolvePolicy(src attr.Source, path string) (Policy, error) {
	vals, err := src.Lookup(path, convAttrs)
	if errors.Is(err, attr.ErrNotFound) {
		return Policy{Action: ActionGuess, EOL: EOLUnset}, nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("looking up conversion attributes for %s: %w", path, err)
	}

	p := Policy{}
	p.Action = checkCRLF(vals[2]) // text
	if p.Action == ActionGuess {
		p.Action = checkCRLF(vals[0]) // crlf
	}
	p.EOL = checkEOL(vals[1])
	return p, nil
}

// crlfFilter strips carriage returns on the way into the store. The
// policy is copied at registration and never mutated, so one filter is
// safe for concurrent read-only use.
type crlfFilter struct {
	policy Policy
}

// AddCRLF resolves the line-ending policy for path and, when conversion
// can ever apply, appends a CRLF-stripping filter carrying the frozen
// effective policy to filters. Paths resolved to binary never get a
// filter, and neither do undecided paths when mode disables automatic
// normalization. On error the list is left untouched.
func AddCRLF(filters *List, src attr.Source, path string, mode config.AutoCRLF) error {
	policy, err := ResolvePolicy(src, path)
	if err != nil {
		return err
	}
	policy.Action = policy.Effective()

	if policy.Action == ActionBinary {
		return nil
	}
	if policy.Action == ActionGuess && mode == config.AutoCRLFFalse {
		return nil
	}

	filters.Append(&crlfFilter{policy: policy})
	return nil
}

func (f *crlfFilter) Apply(src []byte) ([]byte, bool, error) {
	if len(src) == 0 {
		return nil, false, nil
	}

	switch f.policy.Action {
	case ActionAuto, ActionGuess:
		stats := textstat.Gather(src)

		// Content mixing bare CRs with CRLF pairs cannot be renormalized
		// without ambiguity; leave it alone.
		if stats.CR != stats.CRLF {
			return nil, false, nil
		}
		if stats.IsBinary() {
			return nil, false, nil
		}
		if stats.CR == 0 {
			return nil, false, nil
		}

	case ActionBinary:
		// Registration filters binary out; never convert if one slips
		// through anyway.
		return nil, false, nil

	case ActionCRLF:
		// Only the stripping direction is implemented.
		return nil, false, nil
	}

	out, applied := StripCR(src)
	return out, applied, nil
}

// StripCR removes every carriage return that is directly followed by a
// line feed, preserving lone CRs. The final byte of src is copied
// verbatim without lookahead, so a CR that ends the buffer survives;
// callers chunking a stream must carry one byte between chunks if they
// need a pair straddling the boundary converted. Returns false when src
// holds no CR before its last byte and is therefore already clean.
func StripCR(src []byte) ([]byte, bool) {
	bound := len(src) - 1
	i := 0

	for i < bound && src[i] != '\r' {
		i++
	}
	if i == bound {
		return nil, false
	}

	dst := make([]byte, 0, len(src))
	dst = append(dst, src[:i]...)

	// i sits on a CR below bound each time around.
	for i < bound {
		if src[i+1] != '\n' {
			dst = append(dst, '\r')
		}
		i++

		run := i
		for i < bound && src[i] != '\r' {
			i++
		}
		dst = append(dst, src[run:i]...)
	}

	dst = append(dst, src[bound])
	return dst, true
}
