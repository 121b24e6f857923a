package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheDir(t *testing.T) {
	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	if dir == "" {
		t.Error("cacheDir() returned empty string")
	}

	// Should be under home directory
	home, _ := os.UserHomeDir()
	if !strings.HasPrefix(dir, home) {
		t.Errorf("cacheDir() = %q, should be under home %q", dir, home)
	}

	// Should end with "orchestrator"
	if !strings.HasSuffix(dir, "orchestrator") {
		t.Errorf("cacheDir() = %q, should end with 'orchestrator'", dir)
	}

	// Should contain ".cache" in path
	if !strings.Contains(dir, ".cache") {
		t.Errorf("cacheDir() = %q, should contain '.cache'", dir)
	}
}

func TestCacheDirStructure(t *testing.T) {
	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	// Verify the expected structure: $HOME/.cache/orchestrator
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".cache", "orchestrator")
	if dir != expected {
		t.Errorf("cacheDir() = %q, want %q", dir, expected)
	}
}
