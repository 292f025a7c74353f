package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silo/internal/attr"
	"silo/internal/config"
)

// fakeSource serves canned attribute values keyed by path.
type fakeSource struct {
	attrs map[string]map[string]attr.Value
	err   error
}

func (f *fakeSource) Lookup(path string, names []string) ([]attr.Value, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.attrs[path]
	if !ok {
		return nil, attr.ErrNotFound
	}
	values := make([]attr.Value, len(names))
	for i, name := range names {
		values[i] = m[name]
	}
	return values, nil
}

func TestResolvePolicy(t *testing.T) {
	src := &fakeSource{attrs: map[string]map[string]attr.Value{
		"forced.txt":   {"text": attr.ValueTrue},
		"blob.bin":     {"text": attr.ValueFalse},
		"input.txt":    {"crlf": attr.Text("input")},
		"auto.txt":     {"crlf": attr.Text("auto")},
		"windows.txt":  {"text": attr.ValueTrue, "eol": attr.Text("crlf")},
		"unix.txt":     {"text": attr.ValueTrue, "eol": attr.Text("lf")},
		"weird.txt":    {"crlf": attr.Text("nonsense"), "eol": attr.Text("nonsense")},
		"layered.txt":  {"text": attr.ValueTrue, "crlf": attr.Text("input")},
		"fallback.txt": {"crlf": attr.Text("input"), "eol": attr.ValueUnset},
	}}

	tests := []struct {
		path string
		want Policy
	}{
		{"forced.txt", Policy{ActionText, EOLUnset}},
		{"blob.bin", Policy{ActionBinary, EOLUnset}},
		{"input.txt", Policy{ActionInput, EOLUnset}},
		{"auto.txt", Policy{ActionAuto, EOLUnset}},
		{"windows.txt", Policy{ActionText, EOLCRLF}},
		{"unix.txt", Policy{ActionText, EOLLF}},
		{"weird.txt", Policy{ActionGuess, EOLUnset}},
		// text decides first; crlf is only a fallback
		{"layered.txt", Policy{ActionText, EOLUnset}},
		{"fallback.txt", Policy{ActionInput, EOLUnset}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ResolvePolicy(src, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no attributes defaults to guess", func(t *testing.T) {
		got, err := ResolvePolicy(src, "unknown.txt")
		require.NoError(t, err)
		assert.Equal(t, Policy{ActionGuess, EOLUnset}, got)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		boom := errors.New("attribute backend down")
		_, err := ResolvePolicy(&fakeSource{err: boom}, "any.txt")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestAddCRLF(t *testing.T) {
	src := &fakeSource{attrs: map[string]map[string]attr.Value{
		"doc.txt":  {"text": attr.ValueTrue},
		"blob.bin": {"text": attr.ValueFalse},
		"win.txt":  {"eol": attr.Text("crlf")},
	}}

	tests := []struct {
		name       string
		path       string
		mode       config.AutoCRLF
		registered bool
	}{
		{"forced text registers", "doc.txt", config.AutoCRLFFalse, true},
		{"binary never registers", "blob.bin", config.AutoCRLFTrue, false},
		{"guess with autocrlf off skips", "plain.txt", config.AutoCRLFFalse, false},
		{"guess with autocrlf on registers", "plain.txt", config.AutoCRLFTrue, true},
		{"guess with autocrlf input registers", "plain.txt", config.AutoCRLFInput, true},
		{"eol crlf still registers", "win.txt", config.AutoCRLFFalse, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := NewList()
			err := AddCRLF(list, src, tt.path, tt.mode)
			require.NoError(t, err)
			if tt.registered {
				assert.Equal(t, 1, list.Len())
			} else {
				assert.Equal(t, 0, list.Len())
			}
		})
	}

	t.Run("resolution error leaves list untouched", func(t *testing.T) {
		list := NewList()
		err := AddCRLF(list, &fakeSource{err: errors.New("backend down")}, "a.txt", config.AutoCRLFTrue)
		require.Error(t, err)
		assert.Equal(t, 0, list.Len())
	})

	t.Run("two registrations append two filters", func(t *testing.T) {
		list := NewList()
		require.NoError(t, AddCRLF(list, src, "doc.txt", config.AutoCRLFFalse))
		require.NoError(t, AddCRLF(list, src, "doc.txt", config.AutoCRLFFalse))
		assert.Equal(t, 2, list.Len())
	})
}

func TestStripCR(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    string
		applied bool
	}{
		{"no cr at all", "plain text\n", "", false},
		{"single byte cr", "\r", "", false},
		{"cr only as last byte", "abc\r", "", false},
		{"simple pair", "a\r\nb", "a\nb", true},
		{"pair at start", "\r\nb", "\nb", true},
		{"lone cr preserved", "a\rb", "a\rb", true},
		{"cr before cr preserved", "a\r\r\n", "a\r\n", true},
		{"multiple pairs", "one\r\ntwo\r\nthree\r\n", "one\ntwo\nthree\n", true},
		{"final byte kept even when cr", "a\r\nb\r", "a\nb\r", true},
		{"pair then trailing cr", "\r\n\r", "\n\r", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := StripCR([]byte(tt.src))
			assert.Equal(t, tt.applied, applied)
			if tt.applied {
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

// Stripping the stripper's own output converts nothing further: under the
// statistics gate a second pass always abstains.
func TestStripCRIdempotent(t *testing.T) {
	inputs := []string{
		"a\r\nb\r\nc\r\n",
		"mixed\r\nwith\nplain\r\n",
		"\r\n\r\n",
	}

	f := &crlfFilter{policy: Policy{Action: ActionAuto}}
	for _, in := range inputs {
		out, applied, err := f.Apply([]byte(in))
		require.NoError(t, err)
		require.True(t, applied, "first pass should convert %q", in)

		again, applied, err := f.Apply(out)
		require.NoError(t, err)
		assert.False(t, applied, "second pass over %q should abstain", out)
		assert.Nil(t, again)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		src     string
		want    string
		applied bool
	}{
		{"empty buffer skips", ActionText, "", "", false},
		{"forced text strips", ActionText, "a\r\nb", "a\nb", true},
		{"input strips", ActionInput, "a\r\nb", "a\nb", true},
		{"auto strips clean pairs", ActionAuto, "a\r\nb", "a\nb", true},
		{"guess strips clean pairs", ActionGuess, "a\r\nb", "a\nb", true},
		{"auto skips bare cr mix", ActionAuto, "a\rb\nc\r", "", false},
		{"auto skips binary", ActionAuto, "a\x00\r\nb", "", false},
		{"auto skips when no cr", ActionAuto, "plain\n", "", false},
		{"binary defensively skips", ActionBinary, "a\r\nb", "", false},
		{"crlf preference skips", ActionCRLF, "a\r\nb", "", false},
		{"forced text keeps lone cr", ActionText, "a\rb\nc", "a\rb\nc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &crlfFilter{policy: Policy{Action: tt.action}}
			got, applied, err := f.Apply([]byte(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.applied, applied)
			if tt.applied {
				assert.Equal(t, tt.want, string(got))
			}
		})
	}
}

func TestListRun(t *testing.T) {
	src := &fakeSource{attrs: map[string]map[string]attr.Value{
		"doc.txt": {"text": attr.ValueTrue},
	}}

	t.Run("converted content flows through", func(t *testing.T) {
		list := NewList()
		require.NoError(t, AddCRLF(list, src, "doc.txt", config.AutoCRLFFalse))

		out, converted, err := list.Run([]byte("a\r\nb"))
		require.NoError(t, err)
		assert.True(t, converted)
		assert.Equal(t, "a\nb", string(out))
	})

	t.Run("abstention passes source through", func(t *testing.T) {
		list := NewList()
		require.NoError(t, AddCRLF(list, src, "doc.txt", config.AutoCRLFFalse))

		in := []byte("no carriage returns here\n")
		out, converted, err := list.Run(in)
		require.NoError(t, err)
		assert.False(t, converted)
		assert.Equal(t, in, out)
	})

	t.Run("empty list is identity", func(t *testing.T) {
		list := NewList()
		in := []byte("anything")
		out, converted, err := list.Run(in)
		require.NoError(t, err)
		assert.False(t, converted)
		assert.Equal(t, in, out)
	})
}
