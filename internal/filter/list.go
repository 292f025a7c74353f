// internal/filter/list.go
package filter

import (
	"fmt"
	"io"
)

// Filter transforms one buffer on its way into the object store.
//
// Apply returns the transformed buffer with applied=true, or applied=false
// when the filter abstains and the caller must use the source buffer
// unchanged. Abstention is not an error; a non-nil error aborts the write
// of that buffer. Implementations must not retain or mutate src.
type Filter interface {
	Apply(src []byte) (out []byte, applied bool, err error)
}

// List is an ordered chain of filters for a single path. The staging
// caller owns the list and its filters; concurrent Append calls need
// external serialization, running the chain does not.
type List struct {
	filters []Filter
}

func NewList() *List {
	return &List{}
}

// Append adds f to the end of the chain.
func (l *List) Append(f Filter) {
	l.filters = append(l.filters, f)
}

// Len returns the number of registered filters.
func (l *List) Len() int {
	return len(l.filters)
}

// Run feeds src through every filter in order. A filter that abstains
// leaves the buffer as the previous stage produced it. The returned flag
// reports whether any filter actually converted the content.
func (l *List) Run(src []byte) ([]byte, bool, error) {
	cur := src
	converted := false

	for i, f := range l.filters {
		out, applied, err := f.Apply(cur)
		if err != nil {
			return nil, false, fmt.Errorf("applying filter %d: %w", i, err)
		}
		if applied {
			cur = out
			converted = true
		}
	}

	return cur, converted, nil
}

// Close tears down filters that hold resources. Filters without an
// io.Closer implementation need no teardown.
func (l *List) Close() error {
	var firstErr error
	for _, f := range l.filters {
		if c, ok := f.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	l.filters = nil
	return firstErr
}
