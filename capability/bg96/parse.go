package bg96

import (
	"strings"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
)

type urcKind uint8

const (
	urcForward urcKind = iota
	urcIgnore
)

var urcs = map[string]urcKind{
	"+CREG":        urcForward,
	"+CGREG":       urcForward,
	"+CEREG":       urcForward,
	"+CPIN":        urcForward,
	"+CMTI":        urcForward,
	"+QIURC":       urcForward,
	"RDY":          urcForward,
	"RING":         urcForward,
	"POWERED DOWN": urcForward,
	"+QIND":        urcIgnore,
	"+CGEV":        urcIgnore,
}

// AnalyzeCommand classifies a line from its command part.
//
// A line shaped like a URC answers the open step only when its prefix is
// the one the step queries and it has the shape of the answer; otherwise
// it is unsolicited.
func (*Variant) AnalyzeCommand(c *capability.Context, line []byte, e *at.Element) at.Action {
	s := stateOf(c)
	text := string(line)
	name := e.String(line)

	switch at.Classify(text) {
	case at.TypeFinal:
		if text == at.OK {
			return at.ActionFrcEnd
		}
		// CONNECT
		return at.ActionFrcEnd | at.ActionDataMode
	case at.TypePrompt:
		if c.Tx.Open() && s.awaitPrompt {
			s.awaitPrompt = false
			return at.ActionFrcEnd
		}
		return at.ActionIgnored
	case at.TypeError:
		if !c.Tx.Open() {
			return at.ActionIgnored
		}
		c.SetError(at.NewError(text))
		return at.ActionError
	}

	if c.Tx.Open() && s.query != "" && name == s.query && answerShape(name, line) {
		if s.collect {
			s.lines = append(s.lines, text)
			return at.ActionIntermediate
		}
		return at.ActionNoAction
	}

	if kind, ok := urcs[name]; ok {
		if kind == urcIgnore {
			return at.ActionUrcIgnored
		}
		c.PushURC(decodeURC(name, text, line))
		return at.ActionUrcForwarded
	}

	if c.Tx.Open() && s.collect {
		s.collectLine(c, text)
		return at.ActionIntermediate
	}
	return at.ActionIgnored
}

func (s *state) collectLine(c *capability.Context, text string) {
	if c.Tx.SID != capability.SIDDeviceInfo {
		s.lines = append(s.lines, text)
		return
	}
	var field *string
	switch c.Tx.Step {
	case 0:
		field = &s.info.Manufacturer
	case 1:
		field = &s.info.Model
	case 2:
		field = &s.info.Revision
	case 3:
		field = &s.info.IMEI
	}
	if field != nil && *field == "" {
		*field = strings.TrimSpace(text)
	}
}

// AnalyzeParam decodes the parameters of an information line answering
// the open query.
func (*Variant) AnalyzeParam(c *capability.Context, line []byte, e *at.Element) at.Action {
	s := stateOf(c)
	v := e.String(line)
	n, nerr := e.Int(line)

	switch s.query {
	case "+CSQ":
		if nerr != nil {
			break
		}
		switch e.Rank {
		case 1:
			s.csq.RSSI = n
		case 2:
			s.csq.BER = n
		}

	case "+CREG", "+CGREG", "+CEREG":
		r := s.registration(s.query)
		// read form: n,stat[,lac,ci[,AcT]]
		switch e.Rank {
		case 1:
			*r = capability.Registration{Domain: s.query}
		case 2:
			if nerr == nil {
				r.Stat = capability.RegStat(n)
			}
		case 3:
			r.LAC = v
		case 4:
			r.CI = v
		case 5:
			if nerr == nil {
				r.AcT = n
			}
		}

	case "+CGATT":
		if e.Rank == 1 && nerr == nil {
			s.attach.Attached = n == 1
		}

	case "+CPIN":
		if e.Rank == 1 {
			s.sim = capability.SIMStatus(v)
		}

	case "+CMGS":
		if e.Rank == 1 && nerr == nil {
			s.smsRef = n
		}

	case "+QENG":
		switch e.Rank {
		case 1:
			s.cell.Fields = s.cell.Fields[:0]
		case 2:
			s.cell.State = v
		case 3:
			s.cell.RAT = v
			s.cell.Fields = append(s.cell.Fields, v)
		default:
			s.cell.Fields = append(s.cell.Fields, v)
		}
	}
	return at.ActionNoAction
}

// answerShape reports whether a line carrying the queried prefix has the
// form of the query answer. The registration read form starts with the
// unquoted <n>,<stat> pair; the unsolicited form starts with <stat> and
// goes on with the quoted location.
func answerShape(name string, line []byte) bool {
	switch name {
	case "+CREG", "+CGREG", "+CEREG":
	default:
		return true
	}
	var e at.Element
	for at.ExtractElement(line, &e) {
		if e.Rank == 0 {
			continue
		}
		if e.Quoted(line) {
			return false
		}
		if _, err := e.Int(line); err != nil {
			return false
		}
		if e.Rank == 2 {
			return true
		}
	}
	return false
}

func (s *state) registration(domain string) *capability.Registration {
	switch domain {
	case "+CGREG":
		return &s.reg.PS
	case "+CEREG":
		return &s.reg.EPS
	default:
		return &s.reg.CS
	}
}

// decodeURC builds the forwarded form of an unsolicited line.
func decodeURC(name, text string, line []byte) capability.URC {
	u := capability.URC{Name: name, Line: text}
	switch name {
	case "+CREG", "+CGREG", "+CEREG":
		u.Value = decodeRegistration(name, line)
	case "+CPIN":
		if i := strings.IndexByte(text, ':'); i >= 0 {
			u.Value = capability.SIMStatus(strings.TrimSpace(text[i+1:]))
		}
	}
	return u
}

// decodeRegistration parses the unsolicited form stat[,lac,ci[,AcT]].
func decodeRegistration(domain string, line []byte) capability.Registration {
	r := capability.Registration{Domain: domain}
	var e at.Element
	for at.ExtractElement(line, &e) {
		n, err := e.Int(line)
		switch e.Rank {
		case 1:
			if err == nil {
				r.Stat = capability.RegStat(n)
			}
		case 2:
			r.LAC = e.String(line)
		case 3:
			r.CI = e.String(line)
		case 4:
			if err == nil {
				r.AcT = n
			}
		}
	}
	return r
}
