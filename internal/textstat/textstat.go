// internal/textstat/textstat.go
package textstat

// Stats holds byte-class counts gathered from a single buffer.
type Stats struct {
	NUL          int
	CR           int
	LF           int
	CRLF         int
	Printable    int
	NonPrintable int
}

// Gather scans buf once and counts line-ending bytes, CRLF pairs and
// printable vs non-printable bytes. It never fails; an empty buffer
// yields the zero Stats.
func Gather(buf []byte) Stats {
	var stats Stats

	for i := 0; i < len(buf); i++ {
		c := buf[i]

		if c == '\r' {
			stats.CR++
			if i+1 < len(buf) && buf[i+1] == '\n' {
				stats.CRLF++
			}
		}
		if c == '\n' {
			stats.LF++
		}

		switch {
		case c == 127:
			stats.NonPrintable++
		case c < 32:
			switch c {
			case '\b', '\t', '\n', '\v', '\f', '\r', 27:
				stats.Printable++
			case 0:
				stats.NUL++
				stats.NonPrintable++
			default:
				stats.NonPrintable++
			}
		default:
			stats.Printable++
		}
	}

	return stats
}

// IsBinary reports whether the gathered counts look like binary rather
// than text content. Any NUL byte marks the buffer binary outright;
// otherwise more than one non-printable byte per 128 printable ones does.
func (s Stats) IsBinary() bool {
	if s.NUL > 0 {
		return true
	}
	return (s.Printable >> 7) < s.NonPrintable
}
