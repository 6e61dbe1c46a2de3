package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-folio")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-folio" {
			t.Errorf("expected path /tmp/test-folio, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-folio")

	t.Run("DataPath", func(t *testing.T) {
		expected := "/tmp/test-folio/data"
		if dir.DataPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.DataPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-folio/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})

	t.Run("SourceImagePath", func(t *testing.T) {
		expected := "/tmp/test-folio/source_images/book-1/page_0007.png"
		if got := dir.SourceImagePath("book-1", 7); got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	})

	t.Run("SourceImageURL", func(t *testing.T) {
		got := dir.SourceImageURL("book-1", 1)
		if got != "file:///tmp/test-folio/source_images/book-1/page_0001.png" {
			t.Errorf("unexpected url %s", got)
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	folioDir := filepath.Join(tmpDir, "folio-test")

	dir, err := New(folioDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists error = %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist")
	}
	if _, err := os.Stat(dir.DataPath()); err != nil {
		t.Errorf("data dir missing: %v", err)
	}

	if err := dir.EnsureSourceImagesDir("book-1"); err != nil {
		t.Fatalf("EnsureSourceImagesDir error = %v", err)
	}
	if _, err := os.Stat(dir.SourceImagesDir("book-1")); err != nil {
		t.Errorf("source images dir missing: %v", err)
	}
}
