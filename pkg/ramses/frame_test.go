// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeFrame_VascoTender(t *testing.T) {
	line := "I --- 29:091138 --:------ 29:091138 1FC9 024 0022F17564020022F37564026610E0756402001FC9756402"
	f, err := DecodeFrame(line, time.Now())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if f.Verb() != I {
		t.Errorf("verb = %q, want I", f.Verb())
	}
	if f.Src().String() != "29:091138" {
		t.Errorf("src = %s", f.Src())
	}
	if !f.Dst().IsNone() {
		t.Errorf("dst = %s, want none", f.Dst())
	}
	if !f.IsBroadcast() {
		t.Error("expected broadcast frame")
	}
	if f.Code() != Code1FC9 {
		t.Errorf("code = %s", f.Code())
	}
	if len(f.Payload()) != 24 {
		t.Errorf("payload length = %d, want 24", len(f.Payload()))
	}
}

func TestDecodeFrame_WithTimestampAndRSSI(t *testing.T) {
	line := "2023-05-01T12:34:56.789012 045 RQ --- 18:000730 32:022222 --:------ 10E0 001 00"
	f, err := DecodeFrame(line, time.Now())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if f.RSSI() != "045" {
		t.Errorf("rssi = %q", f.RSSI())
	}
	want := time.Date(2023, 5, 1, 12, 34, 56, 789012000, time.UTC)
	if !f.Timestamp().Equal(want) {
		t.Errorf("timestamp = %v, want %v", f.Timestamp(), want)
	}
	if f.Verb() != RQ {
		t.Errorf("verb = %q", f.Verb())
	}
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	lines := []string{
		"I --- 29:091138 --:------ 29:091138 1FC9 024 0022F17564020022F37564026610E0756402001FC9756402",
		"W --- 32:022222 29:091138 --:------ 1FC9 012 0031D98056CE0031DA8056CE",
		"I --- 29:091138 32:022222 --:------ 1FC9 001 00",
		"I --- 29:091138 63:262142 --:------ 10E0 038 000001C8400F0166FFFFFFFFFFFF0E0207E3564D4E2D31374C4D503031000000000000000000",
		"RQ --- 18:000730 32:022222 --:------ 31DA 001 00",
	}
	for _, line := range lines {
		t.Run(line[:20], func(t *testing.T) {
			f, err := DecodeFrame(line, time.Now())
			if err != nil {
				t.Fatalf("decode error: %v", err)
			}
			encoded := f.Encode()
			g, err := DecodeFrame(encoded, time.Now())
			if err != nil {
				t.Fatalf("re-decode error for %q: %v", encoded, err)
			}
			if !g.Checked() {
				t.Error("encoded frame should carry a verified checksum")
			}
			if g.Encode() != encoded {
				t.Errorf("round trip mismatch:\n  %q\n  %q", encoded, g.Encode())
			}
		})
	}
}

func TestDecodeFrame_Checksum(t *testing.T) {
	f, err := DecodeFrame("I --- 29:091138 32:022222 --:------ 1FC9 001 00", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	body := f.Body()
	chk := Checksum(body)

	var sum byte
	for i := 0; i < len(body); i++ {
		sum += body[i]
	}
	if sum+chk != 0 {
		t.Errorf("sum of body and checksum = %d, want 0 mod 256", sum+chk)
	}

	// A corrupted checksum must be rejected with CHECKSUM.
	bad := body + " *00"
	if chk == 0 {
		bad = body + " *01"
	}
	_, err = DecodeFrame(bad, time.Now())
	if KindOf(err) != ErrChecksum {
		t.Errorf("err = %v, want CHECKSUM", err)
	}
}

func TestDecodeFrame_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind ErrKind
	}{
		{"empty", "", ErrMalformed},
		{"comment-like", "# evofw3 0.7.1", ErrMalformed},
		{"bad verb", "XX --- 29:091138 --:------ 29:091138 1FC9 001 00", ErrMalformed},
		{"no seqn slot", "I 000 29:091138 --:------ 29:091138 1FC9 001 00", ErrMalformed},
		{"bad src", "I --- 9:0911388 --:------ 29:091138 1FC9 001 00", ErrMalformed},
		{"absent src", "I --- --:------ --:------ 29:091138 1FC9 001 00", ErrMalformed},
		{"bad code", "I --- 29:091138 --:------ 29:091138 1FG9 001 00", ErrMalformed},
		{"length short", "I --- 29:091138 --:------ 29:091138 1FC9 002 00", ErrLength},
		{"length long", "I --- 29:091138 --:------ 29:091138 1FC9 001 0000", ErrLength},
		{"odd payload", "I --- 29:091138 --:------ 29:091138 1FC9 001 0", ErrLength},
		{"device number overflow", "I --- 29:999999 --:------ 29:091138 1FC9 001 00", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.line, time.Now())
			if err == nil {
				t.Fatal("expected an error")
			}
			if KindOf(err) != tt.kind {
				t.Errorf("kind = %v, want %v (err: %v)", KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestDecodeFrame_TaggedErrors(t *testing.T) {
	_, err := DecodeFrame("garbage", time.Now())
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error is not tagged: %v", err)
	}
	if perr.Kind != ErrMalformed {
		t.Errorf("kind = %v", perr.Kind)
	}
	if !strings.Contains(perr.Error(), "MALFORMED") {
		t.Errorf("message %q lacks the kind tag", perr.Error())
	}
}

func TestFrame_SameWire(t *testing.T) {
	a, _ := DecodeFrame("I --- 29:091138 32:022222 --:------ 1FC9 001 00", time.Now())
	b, _ := DecodeFrame("045 I --- 29:091138 32:022222 --:------ 1FC9 001 00", time.Now())
	c, _ := DecodeFrame("I --- 29:091138 32:022222 --:------ 1FC9 001 21", time.Now())
	if !a.SameWire(b) {
		t.Error("frames differing only in RSSI should match")
	}
	if a.SameWire(c) {
		t.Error("frames with different payloads should not match")
	}
}

func FuzzDecodeFrame(f *testing.F) {
	f.Add("I --- 29:091138 --:------ 29:091138 1FC9 024 0022F17564020022F37564026610E0756402001FC9756402")
	f.Add("W --- 32:022222 29:091138 --:------ 1FC9 012 0031D98056CE0031DA8056CE")
	f.Add("2023-05-01T12:34:56.789012 045 RQ --- 18:000730 32:022222 --:------ 10E0 001 00")
	f.Add("# comment")
	f.Add("")
	f.Fuzz(func(t *testing.T, line string) {
		frame, err := DecodeFrame(line, time.Now())
		if err != nil {
			return
		}
		// Whatever decodes must re-encode and decode to the same bytes.
		again, err := DecodeFrame(frame.Encode(), time.Now())
		if err != nil {
			t.Fatalf("re-decode of %q failed: %v", frame.Encode(), err)
		}
		if !frame.SameWire(again) {
			t.Errorf("wire mismatch after round trip: %q vs %q", frame.Body(), again.Body())
		}
	})
}
