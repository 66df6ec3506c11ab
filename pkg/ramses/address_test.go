// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		class   string
		number  int
	}{
		{"29:091138", false, "29", 91138},
		{"01:145038", false, "01", 145038},
		{"63:262142", false, "63", 262142},
		{"18:000730", false, "18", 730},
		{"--:------", false, "--", 0},
		{"29:91138", true, "", 0},   // too short
		{"29-091138", true, "", 0},  // wrong separator
		{"2x:091138", true, "", 0},  // non-decimal class
		{"29:262143", true, "", 0},  // above MaxDeviceNumber
		{"", true, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := ParseAddress(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Class() != tt.class || a.Number() != tt.number {
				t.Errorf("got %s/%d, want %s/%d", a.Class(), a.Number(), tt.class, tt.number)
			}
			if a.String() != tt.in {
				t.Errorf("String() = %q, want %q", a.String(), tt.in)
			}
		})
	}
}

func TestAddress_Hex(t *testing.T) {
	tests := []struct {
		id  string
		hex string
	}{
		{"29:091138", "756402"}, // Vasco remote from captured tenders
		{"32:022222", "8056CE"}, // Vasco fan
		{"63:262142", "FFFFFE"}, // broadcast
		{"18:000730", "4802DA"},
	}
	for _, tt := range tests {
		a := MustParseAddress(tt.id)
		if a.Hex() != tt.hex {
			t.Errorf("%s: Hex() = %s, want %s", tt.id, a.Hex(), tt.hex)
		}
		back, err := ParseAddressHex(tt.hex)
		if err != nil {
			t.Fatalf("ParseAddressHex(%s): %v", tt.hex, err)
		}
		if back != a {
			t.Errorf("%s: round trip gave %s", tt.hex, back)
		}
	}
}

func TestAddress_Sentinels(t *testing.T) {
	if !AddrNone.IsNone() {
		t.Error("AddrNone should be none")
	}
	if !AddrAll.IsBroadcast() {
		t.Error("AddrAll should be broadcast")
	}
	if AddrAll.String() != "63:262142" {
		t.Errorf("AddrAll = %s", AddrAll)
	}
	if !AddrGateway.IsGateway() {
		t.Error("AddrGateway should be class 18")
	}
}

func TestAddress_ClassName(t *testing.T) {
	tests := []struct {
		id   string
		name string
	}{
		{"01:145038", "CTL"},
		{"04:056057", "TRV"},
		{"13:120241", "BDR"},
		{"18:000730", "HGI"},
		{"29:091138", "REM"},
		{"32:022222", "FAN"},
		{"37:154011", "DIS"},
		{"99:000001", "99"},
	}
	for _, tt := range tests {
		if got := MustParseAddress(tt.id).ClassName(); got != tt.name {
			t.Errorf("%s: ClassName() = %s, want %s", tt.id, got, tt.name)
		}
	}
}
