package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esperanto-oss/etsoc-sim/internal/checker"
)

func TestParseHex64AcceptsPrefixedAndBareForms(t *testing.T) {
	for _, s := range []string{"0x40000000", "40000000"} {
		v, err := parseHex64(s)
		if err != nil {
			t.Fatalf("parseHex64(%q): %v", s, err)
		}
		if v != 0x40000000 {
			t.Fatalf("parseHex64(%q) = %#x, want 0x40000000", s, v)
		}
	}
}

func TestParseFileLoadAndMemWrite32(t *testing.T) {
	fl, err := parseFileLoad("0x40001000,/tmp/blob.bin")
	if err != nil {
		t.Fatalf("parseFileLoad: %v", err)
	}
	if fl.PAddr != 0x40001000 || fl.Path != "/tmp/blob.bin" {
		t.Fatalf("unexpected FileLoad: %+v", fl)
	}

	mw, err := parseMemWrite32("0x40002000,0xdeadbeef")
	if err != nil {
		t.Fatalf("parseMemWrite32: %v", err)
	}
	if mw.PAddr != 0x40002000 || mw.Value != 0xdeadbeef {
		t.Fatalf("unexpected MemWrite32: %+v", mw)
	}
}

func TestLoadFileMergesDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.cfg")
	contents := "# preload directives\n" +
		"elf_load /images/boot.elf\n" +
		"file_load 0x40010000,/images/blob.bin\n" +
		"mem_write32 0x40020000,0x1\n" +
		"reset_pc 0x40000000\n" +
		"mem_check\n" +
		"l1_scp_check\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing cfg: %v", err)
	}

	var o Options
	if err := LoadFile(&o, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if len(o.ElfLoads) != 1 || o.ElfLoads[0] != "/images/boot.elf" {
		t.Fatalf("unexpected ElfLoads: %+v", o.ElfLoads)
	}
	if len(o.FileLoads) != 1 || o.FileLoads[0].PAddr != 0x40010000 {
		t.Fatalf("unexpected FileLoads: %+v", o.FileLoads)
	}
	if len(o.MemWrites) != 1 || o.MemWrites[0].Value != 1 {
		t.Fatalf("unexpected MemWrites: %+v", o.MemWrites)
	}
	if o.ResetPC != 0x40000000 {
		t.Fatalf("unexpected ResetPC: %#x", o.ResetPC)
	}
	if !o.MemCheck || !o.L1ScpCheck {
		t.Fatalf("expected mem_check and l1_scp_check set, got %+v", o)
	}
	if o.L2ScpCheck || o.FLBCheck {
		t.Fatalf("expected l2_scp_check/flb_check unset, got %+v", o)
	}
}

func TestLoadFileRejectsUnknownDirective(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cfg")
	if err := os.WriteFile(path, []byte("bogus_directive 1\n"), 0o644); err != nil {
		t.Fatalf("writing cfg: %v", err)
	}
	var o Options
	if err := LoadFile(&o, path); err == nil {
		t.Fatal("expected an error for an unknown directive")
	}
}

func TestApplyCheckerFlagsEnablesRequestedCategories(t *testing.T) {
	chk := checker.New(nil)
	o := Options{MemCheck: true, FLBCheck: true}
	ApplyCheckerFlags(o, chk)

	chk.NotifyFLBEmpty(0, 0x1000)
	violations := chk.Violations()
	if len(violations) != 1 || violations[0].Category != checker.FLBCheck {
		t.Fatalf("expected FLBCheck to be enabled and recorded, got %+v", violations)
	}
}
