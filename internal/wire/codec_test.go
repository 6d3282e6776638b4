package wire

import (
	"bufio"
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []any{
		nil,
		int32(0),
		int32(-1),
		int32(200),
		"",
		"hello world",
		[]any{"tell", int32(200), "Alpha", "alice", "Beta", "bob", "alice", "hi"},
		map[string]any{"a": int32(1), "b": "two"},
		[]any{map[string]any{"nested": []any{int32(1), int32(2)}}, nil},
	}

	for _, c := range cases {
		b, err := Encode(c)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", c, err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode after Encode(%#v): %v", c, err)
		}
		gb, _ := Encode(got)
		if !bytes.Equal(b, gb) {
			t.Fatalf("round trip mismatch for %#v: %x != %x", c, b, gb)
		}
	}
}

func TestEmptyStringVsNull(t *testing.T) {
	emptyStr, err := Encode("")
	if err != nil {
		t.Fatal(err)
	}
	null, err := Encode(nil)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(emptyStr, null) {
		t.Fatal("empty string and null must encode differently")
	}
	gotEmpty, err := Decode(emptyStr)
	if err != nil {
		t.Fatal(err)
	}
	if gotEmpty != "" {
		t.Fatalf("expected empty string, got %#v", gotEmpty)
	}
	gotNull, err := Decode(null)
	if err != nil {
		t.Fatal(err)
	}
	if gotNull != nil {
		t.Fatalf("expected nil, got %#v", gotNull)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	big := make([]byte, MaxFrameSize+1)
	_, err := Encode(string(big))
	var oversized *OversizedFrameError
	if err == nil {
		t.Fatal("expected oversized frame error")
	}
	if !asOversized(err, &oversized) {
		t.Fatalf("expected *OversizedFrameError, got %T: %v", err, err)
	}
}

func asOversized(err error, target **OversizedFrameError) bool {
	if e, ok := err.(*OversizedFrameError); ok {
		*target = e
		return true
	}
	return false
}

func TestReaderConsumesMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	frame1, _ := Encode([]any{"a"})
	frame2, _ := Encode([]any{"b", int32(2)})
	buf.Write(frame1)
	buf.Write(frame2)

	r := NewReader(bufio.NewReader(&buf))
	v1, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if got := v1.([]any)[0]; got != "a" {
		t.Fatalf("frame 1 = %v", got)
	}
	v2, err := r.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if got := v2.([]any)[0]; got != "b" {
		t.Fatalf("frame 2 = %v", got)
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Fatalf("expected io.EOF at stream end, got %v", err)
	}
}

func TestTruncatedFrameIsMalformed(t *testing.T) {
	full, _ := Encode([]any{"hello"})
	truncated := full[:len(full)-2]
	r := NewReader(bufio.NewReader(bytes.NewReader(truncated)))
	_, err := r.ReadFrame()
	if err == nil {
		t.Fatal("expected malformed frame error")
	}
}

func TestInvalidUTF8IsReplacedNotDropped(t *testing.T) {
	before := ReplacedInvalidBytes()
	var body bytes.Buffer
	body.WriteByte(tagString)
	var lenBuf [4]byte
	raw := []byte{0xff, 0xfe, 'o', 'k'}
	lenBuf[3] = byte(len(raw))
	body.Write(lenBuf[:])
	body.Write(raw)

	ds := &decodeState{buf: body.Bytes()}
	v, err := ds.decodeValue()
	if err != nil {
		t.Fatal(err)
	}
	s := v.(string)
	if s == "" {
		t.Fatal("expected replacement text, not empty string")
	}
	if ReplacedInvalidBytes() != before+1 {
		t.Fatalf("expected invalid byte counter to increment")
	}
}
