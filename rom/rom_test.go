package rom

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"testing"

	"github.com/cespare/xxhash/v2"
)

var image = bytes.Repeat([]byte("PLAYSTATION\x00"), 100)

func TestNew_Plain(t *testing.T) {
	r, err := New("/tmp/games/Game (USA).bin", image)
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "Game (USA).bin" {
		t.Fatalf("name %q", r.Name)
	}
	if !bytes.Equal(r.Contents, image) {
		t.Fatal("contents")
	}
	if r.Hash != xxhash.Sum64(image) || len(r.HashString()) != 16 {
		t.Fatal("hash")
	}
}

func TestNew_Zip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("disc/"); err != nil {
		t.Fatal(err)
	}
	w, err := zw.Create("disc/game.cue")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write(image)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := New("game.ZIP", buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "game.cue" || !bytes.Equal(r.Contents, image) {
		t.Fatalf("unpacked %q (%d bytes)", r.Name, len(r.Contents))
	}
}

func TestNew_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write(image)
	_ = gw.Close()

	r, err := New("game.bin.gz", buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "game.bin" || !bytes.Equal(r.Contents, image) {
		t.Fatalf("unpacked %q (%d bytes)", r.Name, len(r.Contents))
	}
}

func TestNew_SevenZip(t *testing.T) {
	contents, err := os.ReadFile("testdata/game.7z")
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte("PLAYSTATION\x00"), 8)

	r, err := New("Game (USA).7z", contents)
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "game.bin" || !bytes.Equal(r.Contents, want) {
		t.Fatalf("unpacked %q (%d bytes)", r.Name, len(r.Contents))
	}
	if r.Hash != xxhash.Sum64(want) {
		t.Fatalf("hash %s", r.HashString())
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New("game.bin", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	var buf bytes.Buffer
	_ = zip.NewWriter(&buf).Close()
	if _, err := New("empty.zip", buf.Bytes()); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("expected ErrEmptyArchive, got %v", err)
	}

	empty7z, err := os.ReadFile("testdata/empty.7z")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("empty.7z", empty7z); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("expected ErrEmptyArchive from 7z, got %v", err)
	}

	if _, err := New("broken.7z", []byte("not an archive")); err == nil {
		t.Fatal("expected 7z error")
	}
}
