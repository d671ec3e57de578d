package at

import (
	"errors"
	"strings"
)

var (
	// ErrModemError indicates the modem returned a generic ERROR.
	ErrModemError = errors.New("ERROR")
	// ErrNoCarrier indicates the modem returned NO CARRIER.
	ErrNoCarrier = errors.New("NO CARRIER")
	// ErrBusy indicates the modem returned BUSY.
	ErrBusy = errors.New("BUSY")
	// ErrNoAnswer indicates the modem returned NO ANSWER.
	ErrNoAnswer = errors.New("NO ANSWER")
	// ErrNoDialtone indicates the modem returned NO DIALTONE.
	ErrNoDialtone = errors.New("NO DIALTONE")
)

// CMEError indicates a CME Error was returned by the modem.
// The value is the error value, in string form, which may be the numeric or textual, depending
// on the modem configuration.
type CMEError string

// CMSError indicates a CMS Error was returned by the modem.
// The value is the error value, in string form, which may be the numeric or textual, depending
// on the modem configuration.
type CMSError string

func (e CMEError) Error() string {
	return "CME Error: " + string(e)
}

func (e CMSError) Error() string {
	return "CMS Error: " + string(e)
}

// NewError maps an error result line to an error value. It returns nil for
// lines that are not error results.
func NewError(line string) error {
	switch {
	case strings.HasPrefix(line, CmeError):
		return CMEError(strings.TrimSpace(line[len(CmeError):]))
	case strings.HasPrefix(line, CmsError):
		return CMSError(strings.TrimSpace(line[len(CmsError):]))
	case strings.HasPrefix(line, ERROR):
		return ErrModemError
	case line == NoCarrier:
		return ErrNoCarrier
	case line == Busy:
		return ErrBusy
	case line == NoAnswer:
		return ErrNoAnswer
	case line == NoDialtone:
		return ErrNoDialtone
	}
	return nil
}
