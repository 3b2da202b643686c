package codec

import (
	"bytes"
	"log/slog"
	"strings"
)

// scanner reads tokens from an immutable buffer. Every try* helper takes the
// cursor by pointer and advances it only when it succeeds.
type scanner struct {
	data []byte
	log  *slog.Logger
}

func (sc *scanner) eof(pos *int) bool {
	return *pos >= len(sc.data)
}

func (sc *scanner) peek(pos *int) byte {
	if *pos >= len(sc.data) {
		return 0
	}
	return sc.data[*pos]
}

// skipSpace skips whitespace. Commas are separators and count as space.
func (sc *scanner) skipSpace(pos *int) {
	for *pos < len(sc.data) {
		switch sc.data[*pos] {
		case ' ', '\t', '\n', '\r', ',':
			*pos++
		default:
			return
		}
	}
}

func (sc *scanner) tryChar(pos *int, c byte) bool {
	p := *pos
	sc.skipSpace(&p)
	if p < len(sc.data) && sc.data[p] == c {
		*pos = p + 1
		return true
	}
	return false
}

// tryIdentifier reads everything up to ':' with spaces removed. It fails if
// a delimiter or the end of the buffer comes first. An empty name succeeds
// so the caller can skip the entry.
func (sc *scanner) tryIdentifier(pos *int) (string, bool) {
	p := *pos
	sc.skipSpace(&p)
	start := p
	for p < len(sc.data) {
		switch sc.data[p] {
		case ':':
			name := strings.Map(func(r rune) rune {
				if r == ' ' || r == '\t' || r == '\r' {
					return -1
				}
				return r
			}, string(sc.data[start:p]))
			*pos = p + 1
			return name, true
		case '{', '}', '[', ']', '"', '\n':
			return "", false
		}
		p++
	}
	return "", false
}

// tryString reads a double-quoted string. A backslash takes the next byte
// literally. An unterminated string runs to the end of the buffer.
func (sc *scanner) tryString(pos *int) (string, bool) {
	p := *pos
	sc.skipSpace(&p)
	if p >= len(sc.data) || sc.data[p] != '"' {
		return "", false
	}
	p++
	var b strings.Builder
	for p < len(sc.data) {
		c := sc.data[p]
		switch c {
		case '\\':
			p++
			if p < len(sc.data) {
				b.WriteByte(sc.data[p])
				p++
			}
			continue
		case '"':
			*pos = p + 1
			return b.String(), true
		}
		b.WriteByte(c)
		p++
	}
	*pos = p
	return b.String(), true
}

// tryRawText reads a [[ ... ]] block verbatim.
func (sc *scanner) tryRawText(pos *int) (string, bool) {
	p := *pos
	sc.skipSpace(&p)
	if !bytes.HasPrefix(sc.data[p:], []byte("[[")) {
		return "", false
	}
	p += 2
	end := bytes.Index(sc.data[p:], []byte("]]"))
	if end < 0 {
		*pos = len(sc.data)
		return string(sc.data[p:]), true
	}
	*pos = p + end + 2
	return string(sc.data[p : p+end]), true
}

// tryBare reads an unquoted token, which hand-edited files sometimes use for
// numbers and booleans.
func (sc *scanner) tryBare(pos *int) (string, bool) {
	p := *pos
	sc.skipSpace(&p)
	start := p
	for p < len(sc.data) && !isDelimiter(sc.data[p]) {
		p++
	}
	if p == start {
		return "", false
	}
	*pos = p
	return string(sc.data[start:p]), true
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',', '{', '}', '[', ']', '"', ':':
		return true
	}
	return false
}

// tryScalar reads a quoted string or a bare token.
func (sc *scanner) tryScalar(pos *int) (string, bool) {
	if s, ok := sc.tryString(pos); ok {
		return s, true
	}
	return sc.tryBare(pos)
}

// tryArray scans a [ ... ] array without materializing it.
func (sc *scanner) tryArray(pos *int) bool {
	p := *pos
	if !sc.tryChar(&p, '[') {
		return false
	}
	for {
		sc.skipSpace(&p)
		if sc.eof(&p) {
			break
		}
		if sc.data[p] == ']' {
			p++
			break
		}
		sc.skipValue(&p)
	}
	*pos = p
	return true
}

// tryObject scans a { ... } object without materializing it.
func (sc *scanner) tryObject(pos *int) bool {
	p := *pos
	if !sc.tryChar(&p, '{') {
		return false
	}
	for {
		sc.skipSpace(&p)
		if sc.eof(&p) {
			break
		}
		if sc.data[p] == '}' {
			p++
			break
		}
		if _, ok := sc.tryIdentifier(&p); ok {
			sc.skipValue(&p)
			continue
		}
		p++
	}
	*pos = p
	return true
}

// skipValue advances past one value of any shape. It always makes progress
// unless the buffer is exhausted.
func (sc *scanner) skipValue(pos *int) {
	sc.skipSpace(pos)
	if sc.eof(pos) {
		return
	}
	if _, ok := sc.tryRawText(pos); ok {
		return
	}
	if sc.tryArray(pos) || sc.tryObject(pos) {
		return
	}
	if _, ok := sc.tryScalar(pos); ok {
		return
	}
	sc.log.Debug("skipping unexpected character", "offset", *pos, "char", string(sc.data[*pos]))
	*pos++
}
