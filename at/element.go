package at

import (
	"bytes"
	"strconv"
)

// Element locates one token of a received line. Rank 0 is the command
// part ("+CSQ" in "+CSQ: 15,99", or the whole line when it carries no
// prefix); ranks 1 and above are the comma separated parameters, quotes
// stripped.
type Element struct {
	Rank  int
	Start int
	End   int

	pos   int
	state uint8
}

const (
	elemFresh uint8 = iota
	elemParams
	elemDone
)

// Reset rewinds the element to the start of a new line.
func (e *Element) Reset() {
	*e = Element{}
}

// Bytes returns the element contents within line.
func (e *Element) Bytes(line []byte) []byte {
	if e.Start < 0 || e.End > len(line) || e.Start > e.End {
		return nil
	}
	return line[e.Start:e.End]
}

// String returns the element contents within line.
func (e *Element) String(line []byte) string {
	return string(e.Bytes(line))
}

// Int parses the element as a decimal integer.
func (e *Element) Int(line []byte) (int, error) {
	return strconv.Atoi(string(bytes.TrimSpace(e.Bytes(line))))
}

// Quoted reports whether the parameter was enclosed in double quotes.
func (e *Element) Quoted(line []byte) bool {
	return e.Rank > 0 && e.Start > 0 && e.Start <= len(line) && line[e.Start-1] == '"'
}

// Size returns the element length in bytes.
func (e *Element) Size() int {
	return e.End - e.Start
}

// ExtractElement advances e to the next element of line and reports
// whether one was found.
func ExtractElement(line []byte, e *Element) bool {
	switch e.state {
	case elemFresh:
		return extractCommand(line, e)
	case elemParams:
		return extractParam(line, e)
	default:
		return false
	}
}

func extractCommand(line []byte, e *Element) bool {
	e.Rank = 0
	e.Start = 0
	e.state = elemDone

	if len(line) == 0 {
		e.End = 0
		return false
	}

	colon := bytes.IndexByte(line, ':')
	if colon > 0 && isPrefixChar(line[0]) {
		e.End = colon
		e.pos = colon + 1
		for e.pos < len(line) && line[e.pos] == ' ' {
			e.pos++
		}
		if e.pos < len(line) {
			e.state = elemParams
		}
		return true
	}

	e.End = len(line)
	return true
}

func extractParam(line []byte, e *Element) bool {
	if e.pos > len(line) {
		e.state = elemDone
		return false
	}
	e.Rank++

	i := e.pos
	for i < len(line) && line[i] == ' ' {
		i++
	}

	if i < len(line) && line[i] == '"' {
		e.Start = i + 1
		end := bytes.IndexByte(line[e.Start:], '"')
		if end < 0 {
			e.End = len(line)
			e.pos = len(line) + 1
			e.state = elemDone
			return true
		}
		e.End = e.Start + end
		i = e.End + 1
		for i < len(line) && line[i] != ',' {
			i++
		}
	} else {
		e.Start = i
		for i < len(line) && line[i] != ',' {
			i++
		}
		e.End = i
		for e.End > e.Start && line[e.End-1] == ' ' {
			e.End--
		}
	}

	if i >= len(line) {
		e.pos = len(line) + 1
		e.state = elemDone
	} else {
		e.pos = i + 1
	}
	return true
}

func isPrefixChar(b byte) bool {
	switch b {
	case '+', '^', '#', '$', '%', '*':
		return true
	}
	return false
}
