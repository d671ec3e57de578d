package at_test

import (
	"errors"
	"testing"

	"i4.energy/across/cellat/at"
)

func TestExtractElement(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Final result",
			input:    "OK",
			expected: []string{"OK"},
		},
		{
			name:     "Signal quality",
			input:    "+CSQ: 15,99",
			expected: []string{"+CSQ", "15", "99"},
		},
		{
			name:     "Quoted parameters",
			input:    `+CREG: 2,1,"1A2B","01C3D4E5",7`,
			expected: []string{"+CREG", "2", "1", "1A2B", "01C3D4E5", "7"},
		},
		{
			name:     "Quoted parameter with comma",
			input:    `+COPS: 0,0,"Acme, Inc",7`,
			expected: []string{"+COPS", "0", "0", "Acme, Inc", "7"},
		},
		{
			name:     "Empty parameter",
			input:    "+CGREG: 2,1,,",
			expected: []string{"+CGREG", "2", "1", "", ""},
		},
		{
			name:     "CME error",
			input:    "+CME ERROR: 10",
			expected: []string{"+CME ERROR", "10"},
		},
		{
			name:     "Bare information line",
			input:    "Quectel",
			expected: []string{"Quectel"},
		},
		{
			name:     "Prefix without parameters",
			input:    "+QIND:",
			expected: []string{"+QIND"},
		},
		{
			name:     "Unterminated quote",
			input:    `+QENG: "servingcell`,
			expected: []string{"+QENG", "servingcell"},
		},
		{
			name:     "Empty line",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := []byte(tt.input)
			var el at.Element
			var got []string
			for at.ExtractElement(line, &el) {
				if el.Rank != len(got) {
					t.Fatalf("element %d has rank %d", len(got), el.Rank)
				}
				got = append(got, el.String(line))
			}

			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d elements, got %d.\nExpected: %q\nGot: %q",
					len(tt.expected), len(got), tt.expected, got)
			}
			for i, expected := range tt.expected {
				if got[i] != expected {
					t.Errorf("Element %d: expected %q, got %q", i, expected, got[i])
				}
			}
		})
	}
}

func TestElementInt(t *testing.T) {
	line := []byte("+CSQ: 15, 99")
	var el at.Element

	at.ExtractElement(line, &el)
	at.ExtractElement(line, &el)
	if v, err := el.Int(line); err != nil || v != 15 {
		t.Errorf("first parameter = %d, %v; want 15", v, err)
	}
	at.ExtractElement(line, &el)
	if v, err := el.Int(line); err != nil || v != 99 {
		t.Errorf("second parameter = %d, %v; want 99", v, err)
	}

	el.Reset()
	if !at.ExtractElement(line, &el) || el.String(line) != "+CSQ" {
		t.Errorf("Reset did not rewind the element")
	}
}

func TestElementQuoted(t *testing.T) {
	line := []byte(`+CREG: 1,"1234","",7`)
	var el at.Element

	var got []bool
	for at.ExtractElement(line, &el) {
		got = append(got, el.Quoted(line))
	}
	want := []bool{false, false, true, true, false}
	if len(got) != len(want) {
		t.Fatalf("got %d elements, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d quoted = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNewError(t *testing.T) {
	tests := []struct {
		line     string
		expected error
	}{
		{"ERROR", at.ErrModemError},
		{"+CME ERROR: 10", at.CMEError("10")},
		{"+CMS ERROR: 500", at.CMSError("500")},
		{"NO CARRIER", at.ErrNoCarrier},
		{"BUSY", at.ErrBusy},
		{"OK", nil},
	}

	for _, tt := range tests {
		err := at.NewError(tt.line)
		if !errors.Is(err, tt.expected) && err != tt.expected {
			t.Errorf("NewError(%q) = %v, want %v", tt.line, err, tt.expected)
		}
	}

	var cme at.CMEError
	if !errors.As(at.NewError("+CME ERROR: SIM not inserted"), &cme) || string(cme) != "SIM not inserted" {
		t.Errorf("textual CME error not preserved: %q", cme)
	}
}
