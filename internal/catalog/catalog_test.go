package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedCatalog(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names := c.Names()
	if len(names) < 2 {
		t.Fatalf("expected suggestions, got %v", names)
	}
	if names[len(names)-1] != Other {
		t.Fatalf("Other must come last, got %q", names[len(names)-1])
	}
	if !c.Known("TKM College of Engineering, Kollam") {
		t.Fatalf("expected known college")
	}
}

func TestLoadFromFileDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colleges.yaml")
	body := "groups:\n  - name: A\n    colleges: [\"X\", \" X \", \"\", \"Other\"]\n  - name: B\n    colleges: [\"Y\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := c.Names()
	want := []string{"X", "Y", Other}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
