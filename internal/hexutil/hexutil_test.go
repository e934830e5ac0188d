package hexutil

import "testing"

func TestParseUint64AcceptsPrefixedAndBareForms(t *testing.T) {
	for _, s := range []string{"0x40000000", "0X40000000", "40000000", "  40000000  "} {
		v, err := ParseUint64(s)
		if err != nil {
			t.Fatalf("ParseUint64(%q): %v", s, err)
		}
		if v != 0x40000000 {
			t.Fatalf("ParseUint64(%q) = %#x, want 0x40000000", s, v)
		}
	}
}

func TestParseUint64RejectsEmptyAndGarbage(t *testing.T) {
	for _, s := range []string{"", "not-hex", "0x"} {
		if _, err := ParseUint64(s); err == nil {
			t.Fatalf("ParseUint64(%q): expected an error", s)
		}
	}
}

func TestAddrValueSplitsOnComma(t *testing.T) {
	addr, value, err := AddrValue("0x40001000,0xdeadbeef")
	if err != nil {
		t.Fatalf("AddrValue: %v", err)
	}
	if addr != 0x40001000 || value != 0xdeadbeef {
		t.Fatalf("AddrValue = (%#x, %#x), want (0x40001000, 0xdeadbeef)", addr, value)
	}
}

func TestAddrValueRejectsMissingComma(t *testing.T) {
	if _, _, err := AddrValue("0x40001000"); err == nil {
		t.Fatal("expected an error for a value with no comma")
	}
}

func TestAddrPathSplitsOnFirstCommaOnly(t *testing.T) {
	addr, path, err := AddrPath("0x40001000,/tmp/blob,with,commas.bin")
	if err != nil {
		t.Fatalf("AddrPath: %v", err)
	}
	if addr != 0x40001000 || path != "/tmp/blob,with,commas.bin" {
		t.Fatalf("AddrPath = (%#x, %q), want (0x40001000, \"/tmp/blob,with,commas.bin\")", addr, path)
	}
}

func TestParseMaskAcceptsHexAndDecimal(t *testing.T) {
	v, err := ParseMask("0x10")
	if err != nil || v != 0x10 {
		t.Fatalf("ParseMask(0x10) = (%d, %v), want (16, nil)", v, err)
	}
	v, err = ParseMask("16")
	if err != nil || v != 16 {
		t.Fatalf("ParseMask(16) = (%d, %v), want (16, nil)", v, err)
	}
}
