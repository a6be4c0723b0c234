// Package payload encodes and decodes the small application messages carried
// in a transaction's payload field.
//
// Two kinds exist. Tips are "VIVR-TIP1:" followed by key=value pairs separated
// by ';'. Chat posts are "ciph_msg:1:bcast:{streamId}:{text}".
package payload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind identifies an application message grammar.
type Kind string

const (
	KindTip  Kind = "tip"
	KindChat Kind = "chat"
)

const (
	TipPrefix  = "VIVR-TIP1:"
	ChatPrefix = "ciph_msg:1:bcast:"
)

// Chat field names.
const (
	FieldStreamID = "stream_id"
	FieldText     = "text"
)

// Tip field names written by the web client.
const (
	FieldSender = "sender"
	FieldAmount = "amt"
	FieldMsg    = "msg"
)

var (
	ErrUnknownKind   = errors.New("payload: unknown kind")
	ErrInvalidFields = errors.New("payload: invalid fields")
)

// Message is a decoded application payload.
type Message struct {
	Kind   Kind
	Fields map[string]string
}

// Get returns a field or "".
func (m *Message) Get(key string) string {
	if m == nil {
		return ""
	}
	return m.Fields[key]
}

var prefixes = []struct {
	kind   Kind
	prefix string
}{
	{KindTip, TipPrefix},
	{KindChat, ChatPrefix},
}

// Encode renders a message as lowercase hex ready to attach to a transaction.
func Encode(kind Kind, fields map[string]string) (string, error) {
	text, err := encodeText(kind, fields)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString([]byte(text)), nil
}

func encodeText(kind Kind, fields map[string]string) (string, error) {
	switch kind {
	case KindTip:
		if len(fields) == 0 {
			return "", fmt.Errorf("%w: empty tip", ErrInvalidFields)
		}
		keys := make([]string, 0, len(fields))
		for k, v := range fields {
			if k == "" || strings.ContainsAny(k, "=;") || strings.Contains(v, ";") ||
				!utf8.ValidString(k) || !utf8.ValidString(v) {
				return "", fmt.Errorf("%w: tip field %q", ErrInvalidFields, k)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(TipPrefix)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(fields[k])
		}
		return b.String(), nil

	case KindChat:
		streamID, ok := fields[FieldStreamID]
		if !ok || streamID == "" || strings.Contains(streamID, ":") || len(fields) != 2 {
			return "", fmt.Errorf("%w: chat needs %s and %s", ErrInvalidFields, FieldStreamID, FieldText)
		}
		text, ok := fields[FieldText]
		if !ok || !utf8.ValidString(streamID) || !utf8.ValidString(text) {
			return "", fmt.Errorf("%w: chat needs %s", ErrInvalidFields, FieldText)
		}
		return ChatPrefix + streamID + ":" + text, nil
	}
	return "", ErrUnknownKind
}

// Decode extracts an application message from a hex payload. It returns nil
// when the payload carries no recognizable message; that is not an error.
func Decode(payloadHex string) *Message {
	payloadHex = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(payloadHex), "0x"))
	if payloadHex == "" {
		return nil
	}

	if raw, err := hex.DecodeString(payloadHex); err == nil && utf8.Valid(raw) {
		return decodeText(string(raw))
	}
	return decodeHexFallback(payloadHex)
}

// decodeText parses from the earliest known prefix, so a chat text that
// quotes a tip prefix stays a chat message.
func decodeText(text string) *Message {
	best, at := -1, -1
	for n, p := range prefixes {
		if i := strings.Index(text, p.prefix); i >= 0 && (at < 0 || i < at) {
			best, at = n, i
		}
	}
	if best < 0 {
		return nil
	}
	p := prefixes[best]
	return parse(p.kind, text[at+len(p.prefix):])
}

// decodeHexFallback handles payloads that are not UTF-8 end to end but still
// contain a hex-encoded prefix. The tail after the prefix is cut at the first
// invalid UTF-8 sequence.
func decodeHexFallback(payloadHex string) *Message {
	for _, p := range prefixes {
		needle := hex.EncodeToString([]byte(p.prefix))
		from := 0
		for {
			i := strings.Index(payloadHex[from:], needle)
			if i < 0 {
				break
			}
			i += from
			// only byte-aligned matches are real
			if i%2 == 0 {
				tail := payloadHex[i+len(needle):]
				if len(tail)%2 == 1 {
					tail = tail[:len(tail)-1]
				}
				raw, err := hex.DecodeString(tail)
				if err != nil {
					return nil
				}
				return parse(p.kind, validPrefix(raw))
			}
			from = i + 1
		}
	}
	return nil
}

func validPrefix(b []byte) string {
	n := 0
	for n < len(b) {
		r, size := utf8.DecodeRune(b[n:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		n += size
	}
	return string(b[:n])
}

func parse(kind Kind, body string) *Message {
	switch kind {
	case KindTip:
		fields := map[string]string{}
		for _, entry := range strings.Split(body, ";") {
			k, v, ok := strings.Cut(entry, "=")
			if !ok || k == "" {
				continue
			}
			fields[k] = v
		}
		if len(fields) == 0 {
			return nil
		}
		return &Message{Kind: KindTip, Fields: fields}

	case KindChat:
		streamID, text, ok := strings.Cut(body, ":")
		if !ok || streamID == "" {
			return nil
		}
		return &Message{Kind: KindChat, Fields: map[string]string{
			FieldStreamID: streamID,
			FieldText:     text,
		}}
	}
	return nil
}
