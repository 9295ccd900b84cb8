package calstatus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode_EachKnownName(t *testing.T) {
	for i, name := range Names() {
		got := Encode(0, name)
		if got != Code(1)<<i {
			t.Errorf("Encode(0, %q) = %#x, want %#x", name, got, Code(1)<<i)
		}
		if d := Decode(got); len(d) != 1 || d[0] != name {
			t.Errorf("Decode(Encode(0, %q)) = %v", name, d)
		}
	}
}

func TestCatalog_Positions(t *testing.T) {
	tests := []struct {
		name string
		bit  Code
	}{
		{"inv_antnum", 1 << 0},
		{"inv_sim", 1 << 11},
		{"infile_err", 1 << 12},
		{"fringes_err", 1 << 15},
		{"sim_err", 1 << 23},
		{"unknown_err", 1 << 24},
	}
	for _, tt := range tests {
		got, ok := Lookup(tt.name)
		if !ok || got != tt.bit {
			t.Errorf("Lookup(%q) = %#x, %v; want %#x", tt.name, got, ok, tt.bit)
		}
	}
	if n := len(Names()); n != 25 {
		t.Errorf("catalog has %d names, want 25", n)
	}
}

func TestDecode_CatalogOrderRegardlessOfInput(t *testing.T) {
	s := Encode(0, "flagging_err", "inv_pol", "flagging_err", "inv_antnum")
	want := []string{"inv_antnum", "inv_pol", "flagging_err"}
	if diff := cmp.Diff(want, Decode(s)); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	for _, s := range []Code{0, 1, 0x155, 0x1ffffff, CalMissingErr | SimErr} {
		first := Decode(s)
		again := Decode(Encode(0, first...))
		if diff := cmp.Diff(first, again); diff != "" {
			t.Errorf("round trip of %#x (-first +again):\n%s", s, diff)
		}
	}
}

func TestEncode_UnknownName(t *testing.T) {
	if got := Encode(0, "totally_bogus"); got != UnknownErr {
		t.Errorf("Encode(0, bogus) = %#x, want only UnknownErr", got)
	}
	got := Encode(InvPol, "totally_bogus", "inv_sim")
	if got != InvPol|UnknownErr|InvSim {
		t.Errorf("Encode mixed = %#x", got)
	}
	if diff := cmp.Diff([]string{"totally_bogus"}, Unknown("inv_sim", "totally_bogus")); diff != "" {
		t.Errorf("Unknown mismatch:\n%s", diff)
	}
}

func TestEncodeCode_ORs(t *testing.T) {
	if got := EncodeCode(InvAntNum, 0x6); got != 0x7 {
		t.Errorf("EncodeCode = %#x, want 0x7", got)
	}
}

func TestIsSet(t *testing.T) {
	s := InvDelayP1 | GainTblErr
	if !IsSet(s, GainTblErr) {
		t.Error("GainTblErr should be set")
	}
	if IsSet(s, DelayTblErr) {
		t.Error("DelayTblErr should not be set")
	}
	if IsSet(s, 0) {
		t.Error("zero bit is never set")
	}
}

func TestCode_String(t *testing.T) {
	if got := Code(0).String(); got != "ok" {
		t.Errorf("String(0) = %q", got)
	}
	if got := (InvPol | InfileErr).String(); got != "inv_pol|infile_err" {
		t.Errorf("String = %q", got)
	}
}
