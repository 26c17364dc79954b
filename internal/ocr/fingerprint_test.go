package ocr

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestHashFileIsStable(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	if err := os.WriteFile(a, []byte("%PDF-1.7 same bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("%PDF-1.7 same bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	ha, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile(a) error = %v", err)
	}
	hb, err := HashFile(b)
	if err != nil {
		t.Fatalf("HashFile(b) error = %v", err)
	}
	if ha != hb {
		t.Fatalf("identical contents hashed differently: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("expected hex sha256, got %q", ha)
	}
}

func TestFingerprinterMemoisesUntilFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("version one"), 0o600); err != nil {
		t.Fatal(err)
	}
	calls := 0
	f := NewFingerprinter()
	f.hashFn = func(p string) (string, error) {
		calls++
		return HashFile(p)
	}

	first, err := f.Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if _, err := f.Fingerprint(path); err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one hash computation, got %d", calls)
	}

	if err := os.WriteFile(path, []byte("version two, longer"), 0o600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	second, err := f.Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if second == first {
		t.Fatalf("modified file kept its stale fingerprint")
	}
	if calls != 2 {
		t.Fatalf("expected a rehash after modification, got %d calls", calls)
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := NewFingerprinter().Fingerprint(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPageNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"page-1.png", 1, true},
		{"page-07.png", 7, true},
		{"page-112.png", 112, true},
		{"page-x.png", 0, false},
		{"other-1.png", 0, false},
		{"page-1.ppm", 0, false},
	}
	for _, tt := range tests {
		got, ok := pageNumber(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("pageNumber(%q) = %d, %v", tt.name, got, ok)
		}
	}
}

func TestPopplerRendererAvailability(t *testing.T) {
	missing := NewPopplerRenderer(t.TempDir())
	if err := missing.Available(); err == nil {
		t.Fatalf("expected capability error for empty bin dir")
	}
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed in PATH")
	}
	if err := NewPopplerRenderer("").Available(); err != nil {
		t.Fatalf("Available() error = %v", err)
	}
}
