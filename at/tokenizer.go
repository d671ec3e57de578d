package at

import (
	"strings"
)

// LineFramer is a byte-at-a-time end of message detector for the ring
// buffer producer. A message ends on LF, or on a '>' that opens a line
// (the data prompt, which the modem never terminates).
//
// The zero value is ready to use. A LineFramer must only be fed from one
// goroutine.
type LineFramer struct {
	lineLen int
}

// EndOfMessage consumes one byte and reports whether it terminates the
// current message.
func (f *LineFramer) EndOfMessage(b byte) bool {
	switch {
	case b == '\n':
		f.lineLen = 0
		return true
	case b == '>' && f.lineLen == 0:
		return true
	case b == '\r':
		// CR does not count as line content: "\r\n>" still opens a line.
		return false
	default:
		f.lineLen++
		return false
	}
}

// Reset forgets any partially seen line.
func (f *LineFramer) Reset() {
	f.lineLen = 0
}

// Trim removes the line terminators around a framed message. The prompt
// is returned as Prompt so it classifies the same with or without its
// trailing space.
func Trim(msg []byte) string {
	line := strings.Trim(string(msg), "\r\n")
	if strings.TrimSpace(line) == ">" {
		return Prompt
	}
	return line
}

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	if line == Prompt || line == ">" {
		return TypePrompt
	}
	if strings.TrimSpace(line) == "" {
		return TypeEmpty
	}

	// Direct matches for final results
	switch line {
	case OK, Connect:
		return TypeFinal
	case ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeError
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeError
	case strings.HasPrefix(line, Connect+" "):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), strings.HasPrefix(line, UrcMessageReport), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}
