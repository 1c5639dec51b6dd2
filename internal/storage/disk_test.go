package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPutOpenAndURL(t *testing.T) {
	d := NewDisk(t.TempDir(), "http://localhost:8080/", 0)
	n, err := d.Put("chat-files", "room1/abc.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil || n != 8 {
		t.Fatalf("put: %d %v", n, err)
	}
	f, err := d.Open("chat-files", "room1/abc.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	body, _ := io.ReadAll(f)
	if string(body) != "%PDF-1.4" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := d.URL("chat-files", "room1/abc.pdf"); got != "http://localhost:8080/storage/chat-files/room1/abc.pdf" {
		t.Fatalf("unexpected url %s", got)
	}
	if _, err := d.Put("chat-files", "room1/abc.pdf", strings.NewReader("x")); !errors.Is(err, ErrExists) {
		t.Fatalf("overwrite allowed: %v", err)
	}
}

func TestRejectsEscapingPaths(t *testing.T) {
	d := NewDisk(t.TempDir(), "", 0)
	for _, p := range []string{"", "../x", "a/../../x", "a//b", "a\\b", "./a"} {
		if _, err := d.Put("chat-files", p, strings.NewReader("x")); !errors.Is(err, ErrBadPath) {
			t.Fatalf("path %q accepted: %v", p, err)
		}
	}
	if _, err := d.Put("../etc", "x", strings.NewReader("x")); !errors.Is(err, ErrBadPath) {
		t.Fatalf("bucket escape accepted: %v", err)
	}
}

func TestSizeLimit(t *testing.T) {
	d := NewDisk(t.TempDir(), "", 4)
	if _, err := d.Put("b", "big.bin", strings.NewReader("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := d.Open("b", "big.bin"); err == nil {
		t.Fatalf("oversized object left behind")
	}
	if _, err := d.Put("b", "ok.bin", strings.NewReader("1234")); err != nil {
		t.Fatalf("object at the limit rejected: %v", err)
	}
}
