package theme

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.gpl")
	data := "GIMP Palette\nName: Test\nColumns: 2\n# comment\n  0   0   0\tblack\n255 255 255\twhite\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadGPL(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Test" || len(p.Colors) != 2 {
		t.Fatalf("unexpected palette %+v", p)
	}
	if got := p.Lookup(0.5); got != (RGB{127, 127, 127}) {
		t.Errorf("expected mid grey, got %v", got)
	}
	if got := p.Lookup(2); got != (RGB{255, 255, 255}) {
		t.Errorf("expected clamp to white, got %v", got)
	}
}

func TestLoadGPLEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpl")
	os.WriteFile(path, []byte("GIMP Palette\nName: Empty\n"), 0644)
	if _, err := LoadGPL(path); err == nil {
		t.Error("expected an error for a palette with no colors")
	}
}

func TestLoadDefault(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "default" || p.Lookup(-1) != p.Colors[0] || p.Lookup(2) != p.Colors[len(p.Colors)-1] {
		t.Errorf("unexpected default palette %+v", p)
	}
}
