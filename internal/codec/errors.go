package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a top-level resource names a type the
// registry does not know. Nested resources of unknown types are skipped.
var ErrUnknownType = errors.New("unknown resource type")

// SyntaxError reports a resource header that is not in the form the writer
// produces: _uuid first, _type second.
type SyntaxError struct {
	Line   int // 1-based
	Column int // 1-based, in bytes
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func newSyntaxError(data []byte, offset int, format string, args ...any) *SyntaxError {
	if offset > len(data) {
		offset = len(data)
	}
	line, col := 1, 1
	for _, c := range data[:offset] {
		if c == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return &SyntaxError{Line: line, Column: col, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
