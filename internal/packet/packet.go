// Package packet defines the I3 packet model: a closed set of kinds, each
// with a fixed positional field layout, encode/decode to a wire value
// tree (see internal/wire), and kind-specific validation.
//
// Translation is positional, not by name: position 0 is always kind, 1 is
// TTL, 2-5 are the addressing header, and 6+ are kind-specific. This
// mirrors the source's dynamic-dispatch-on-kind pattern re-expressed as a
// discriminated union: Packet is the interface, each kind is a concrete
// struct, and FromSequence is the one place that knows how to tell them
// apart.
package packet

import (
	"fmt"
)

// ValidationError is returned by FromSequence/Validate when a packet's
// structure or required fields fail the kind's rules.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("packet: %s: %s", e.Kind, e.Reason)
}

// Header carries the six fields common to every packet: kind, TTL, and the
// four-field addressing tuple.
type Header struct {
	Kind           Kind
	TTL            int32
	OriginatorMud  string
	OriginatorUser string
	TargetMud      string
	TargetUser     string
}

// Head returns h itself. Defined so that every concrete packet kind, which
// embeds Header anonymously, automatically satisfies the Packet interface's
// Head() method via promotion — no kind needs to write this by hand.
func (h Header) Head() Header { return h }

// SetTTL updates the embedded TTL in place. Pointer receiver plus value
// embedding means every concrete kind (always held as a pointer) gets this
// promoted for free, letting the dispatcher decrement TTL without a type
// switch over every packet kind.
func (h *Header) SetTTL(ttl int32) { h.TTL = ttl }

// IsBroadcast reports whether this packet's target mud is the broadcast
// address ("*" or empty/zero — the wire sometimes carries integer 0 in
// this position, which decodes to the string "0"), per §4.5 rule 2.
func (h Header) IsBroadcast() bool {
	return h.TargetMud == "*" || h.TargetMud == "" || h.TargetMud == "0"
}

// Packet is implemented by every concrete packet kind. Head returns the
// common addressing/TTL fields; ToSequence/Validate are kind-specific.
type Packet interface {
	Head() Header
	ToSequence() []any
	Validate() error
	SetTTL(ttl int32)
}

// headerFields returns the first six positional wire values shared by
// every kind.
func headerFields(h Header) []any {
	return []any{string(h.Kind), h.TTL, h.OriginatorMud, h.OriginatorUser, h.TargetMud, h.TargetUser}
}

func validateHeader(h Header) error {
	if h.TTL < 0 || h.TTL > TTLCeiling {
		return &ValidationError{Kind: h.Kind, Reason: fmt.Sprintf("ttl %d out of range [0,%d]", h.TTL, TTLCeiling)}
	}
	if h.Kind == "" {
		return &ValidationError{Reason: "packet kind is required"}
	}
	return nil
}

// asString coerces a decoded wire value to a string: nil becomes "",
// integers become their decimal form (so a wire 0 becomes "0"), and any
// other value is formatted with %v.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int32:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt32(v any) int32 {
	switch t := v.(type) {
	case int32:
		return t
	case int:
		return int32(t)
	case string:
		var n int32
		fmt.Sscanf(t, "%d", &n)
		return n
	default:
		return 0
	}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asSeq(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func decodeHeader(kind Kind, seq []any, minLen int) (Header, error) {
	if len(seq) < minLen {
		return Header{}, &ValidationError{Kind: kind, Reason: fmt.Sprintf("expected %d+ fields, got %d", minLen, len(seq))}
	}
	return Header{
		Kind:           kind,
		TTL:            asInt32(seq[1]),
		OriginatorMud:  asString(seq[2]),
		OriginatorUser: asString(seq[3]),
		TargetMud:      asString(seq[4]),
		TargetUser:     asString(seq[5]),
	}, nil
}

// FromSequence decodes a raw wire value tree (as produced by internal/wire)
// into a concrete Packet, dispatching on position 0 (the kind tag).
func FromSequence(seq []any) (Packet, error) {
	if len(seq) < 6 {
		return nil, &ValidationError{Reason: fmt.Sprintf("packet header requires 6 fields, got %d", len(seq))}
	}
	kind := Kind(asString(seq[0]))
	decoder, ok := decoders[kind]
	if !ok {
		return nil, &ValidationError{Kind: kind, Reason: "unknown packet kind"}
	}
	p, err := decoder(seq)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

type decoderFunc func(seq []any) (Packet, error)

var decoders map[Kind]decoderFunc

func registerDecoder(k Kind, fn decoderFunc) {
	if decoders == nil {
		decoders = make(map[Kind]decoderFunc)
	}
	decoders[k] = fn
}

// MakeReply builds a reply packet of the paired kind for request kinds
// that have one, swapping originator/target addresses and resetting TTL
// to the policy ceiling. Callers still need to populate the reply's
// kind-specific payload fields.
func MakeReply(req Packet) (Header, bool) {
	h := req.Head()
	replyK, ok := replyKind[h.Kind]
	if !ok {
		return Header{}, false
	}
	return Header{
		Kind:           replyK,
		TTL:            TTLCeiling,
		OriginatorMud:  h.TargetMud,
		OriginatorUser: h.TargetUser,
		TargetMud:      h.OriginatorMud,
		TargetUser:     h.OriginatorUser,
	}, true
}

// MakeErrorReply synthesizes an error packet addressed back to the
// originator of req, per §4.5 rule 4 and §7's routing-error taxonomy.
func MakeErrorReply(req Packet, code, message string) *ErrorPacket {
	h := req.Head()
	return &ErrorPacket{
		Header: Header{
			Kind:           KindError,
			TTL:            TTLCeiling,
			OriginatorMud:  h.TargetMud,
			OriginatorUser: h.TargetUser,
			TargetMud:      h.OriginatorMud,
			TargetUser:     h.OriginatorUser,
		},
		ErrorCode:    code,
		ErrorMessage: message,
		BadPacket:    h.Kind,
	}
}
