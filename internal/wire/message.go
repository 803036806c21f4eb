// Package wire defines the on-the-wire CDP frame shapes and their framing
// convention over the pipe transport: newline-delimited JSON is NOT used —
// frames are separated by a single NUL byte in both directions, per CDP's
// pipe mode.
package wire

import (
	"fmt"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Delim is the frame separator used on both the read and write directions of
// the pipe transport. CDP's pipe mode fixes this; it must never be assumed
// to be '\n'.
const Delim = '\000'

// Error is the `error` object carried by a CDP response message.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Error satisfies the standard library error interface.
func (e *Error) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

// Message is the single wire shape that covers all three frame kinds
// described in the data model: a Command has ID+Method(+Params), a Response
// has ID+(Result|Error), and an Event has Method(+Params) and no ID.
type Message struct {
	ID        int64  `json:"id,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method,omitempty"`
	Params    []byte `json:"params,omitempty"`
	Result    []byte `json:"result,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// IsEvent reports whether this message has no command id, i.e. it is an
// unsolicited event rather than a command response.
func (m *Message) IsEvent() bool {
	return m.ID == 0 && len(m.Method) > 0
}

// MarshalJSON satisfies encoding/json.Marshaler by delegating to the
// hand-written easyjson encoder below, avoiding a reflective pass over the
// struct on every outbound frame.
func (m Message) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	m.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// UnmarshalJSON satisfies encoding/json.Unmarshaler by delegating to the
// hand-written easyjson decoder below.
func (m *Message) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	m.UnmarshalEasyJSON(&l)
	return l.Error()
}

// MarshalEasyJSON writes the message in the easyjson style: straight-line
// field encoding, no reflection, raw passthrough for the already-encoded
// Params/Result payloads.
func (m Message) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	first := true

	if m.ID != 0 {
		w.RawString(`"id":`)
		w.Int64(m.ID)
		first = false
	}
	if m.SessionID != "" {
		if !first {
			w.RawByte(',')
		}
		w.RawString(`"sessionId":`)
		w.String(m.SessionID)
		first = false
	}
	if m.Method != "" {
		if !first {
			w.RawByte(',')
		}
		w.RawString(`"method":`)
		w.String(m.Method)
		first = false
	}
	if len(m.Params) != 0 {
		if !first {
			w.RawByte(',')
		}
		w.RawString(`"params":`)
		w.Raw(m.Params, nil)
		first = false
	}
	if len(m.Result) != 0 {
		if !first {
			w.RawByte(',')
		}
		w.RawString(`"result":`)
		w.Raw(m.Result, nil)
		first = false
	}
	if m.Error != nil {
		if !first {
			w.RawByte(',')
		}
		w.RawString(`"error":{"code":`)
		w.Int64(m.Error.Code)
		w.RawString(`,"message":`)
		w.String(m.Error.Message)
		if m.Error.Data != "" {
			w.RawString(`,"data":`)
			w.String(m.Error.Data)
		}
		w.RawByte('}')
	}
	w.RawByte('}')
}

// UnmarshalEasyJSON reads a message field-by-field without reflection.
// Unrecognized keys are skipped, matching the teacher's tolerant parsing
// (pkg/devtools/transport.go's parseAndRelay discards what it can't use
// rather than failing the whole frame).
func (m *Message) UnmarshalEasyJSON(l *jlexer.Lexer) {
	isTopLevel := l.IsStart()
	if l.IsNull() {
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		if l.IsNull() {
			l.Skip()
			l.WantComma()
			continue
		}
		switch key {
		case "id":
			m.ID = l.Int64()
		case "sessionId":
			m.SessionID = l.String()
		case "method":
			m.Method = l.String()
		case "params":
			if data := l.Raw(); len(data) > 0 {
				m.Params = append(m.Params[:0], data...)
			}
		case "result":
			if data := l.Raw(); len(data) > 0 {
				m.Result = append(m.Result[:0], data...)
			}
		case "error":
			m.Error = &Error{}
			l.Delim('{')
			for !l.IsDelim('}') {
				ekey := l.UnsafeFieldName(false)
				l.WantColon()
				switch ekey {
				case "code":
					m.Error.Code = l.Int64()
				case "message":
					m.Error.Message = l.String()
				case "data":
					m.Error.Data = l.String()
				default:
					l.SkipRecursive()
				}
				l.WantComma()
			}
			l.Delim('}')
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
	if isTopLevel {
		l.Consumed()
	}
}
