package web

import (
	"io/fs"
	"strings"
	"testing"
)

func TestDistHasIndex(t *testing.T) {
	dist, err := Dist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := fs.ReadFile(dist, "index.html")
	if err != nil {
		t.Fatalf("reading index.html: %v", err)
	}
	if !strings.Contains(string(data), "/api/chains") {
		t.Error("expected dashboard to call the chains API")
	}
}
