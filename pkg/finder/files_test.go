package finder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindManifests(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", ".#a.yml", "nested/c.yaml"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("kind: Service\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := FindManifests(dir)
	if err != nil {
		t.Fatalf("FindManifests() error = %v", err)
	}

	want := []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}
	if len(files) != len(want) {
		t.Fatalf("FindManifests() = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestFindManifestsSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := FindManifests(path)
	if err != nil {
		t.Fatalf("FindManifests() error = %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("FindManifests() = %v, want [%s]", files, path)
	}

	if _, err := FindManifests(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("FindManifests() on a missing path should fail")
	}
}

func TestIsManifest(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"app.yaml", true},
		{"dir/app.yml", true},
		{"app.json", false},
		{".app.yaml", false},
		{".#app.yaml", false},
		{"app.yaml~", false},
	}
	for _, tt := range tests {
		if got := IsManifest(tt.name); got != tt.want {
			t.Errorf("IsManifest(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
