package ingest

import (
	"reflect"
	"testing"
)

func TestSortPDFsByNumber(t *testing.T) {
	t.Run("numeric suffixes sort numerically", func(t *testing.T) {
		paths := []string{"book-10.pdf", "book-2.pdf", "book-1.pdf"}
		got := sortPDFsByNumber(paths)
		want := []string{"book-1.pdf", "book-2.pdf", "book-10.pdf"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("unnumbered files come first", func(t *testing.T) {
		paths := []string{"book-1.pdf", "book.pdf"}
		got := sortPDFsByNumber(paths)
		want := []string{"book.pdf", "book-1.pdf"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		paths := []string{"b-2.pdf", "b-1.pdf"}
		sortPDFsByNumber(paths)
		if paths[0] != "b-2.pdf" {
			t.Error("input slice was reordered")
		}
	})
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"crusade-europe.pdf", "crusade-europe"},
		{"/scans/my-book-1.pdf", "my-book"},
		{"plain.pdf", "plain"},
		{"dir/part-12.pdf", "part"},
	}
	for _, tt := range tests {
		if got := deriveTitle(tt.path); got != tt.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
