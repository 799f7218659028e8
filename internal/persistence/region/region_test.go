package region

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/tag"
)

func TestCoords(t *testing.T) {
	rx, rz, err := Coords("/w/region/r.-1.3.mca")
	if err != nil || rx != -1 || rz != 3 {
		t.Fatalf("coords = %d,%d err=%v", rx, rz, err)
	}
	if _, _, err := Coords("r.1.mcr"); err == nil {
		t.Fatalf("expected error for non-anvil name")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte("structure references")
	for _, kind := range []byte{CompressionGzip, CompressionZlib, CompressionNone} {
		data, err := Compress(kind, payload)
		if err != nil {
			t.Fatalf("compress %d: %v", kind, err)
		}
		if data[0] != kind {
			t.Fatalf("type byte = %d want %d", data[0], kind)
		}
		got, err := Decompress(data)
		if err != nil {
			t.Fatalf("decompress %d: %v", kind, err)
		}
		if string(got) != string(payload) {
			t.Fatalf("kind %d: got %q", kind, got)
		}
	}
	if _, err := Decompress([]byte{9, 1, 2}); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}

func TestFile_WriteReadChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.-1.0.mca")

	f, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pos := chunk.Pos{X: -2, Z: 5}
	root := tag.Compound{}
	if err := tag.Set(root, "DataVersion", int32(2586)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.WriteChunk(pos, root); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.WriteChunk(chunk.Pos{X: 0, Z: 0}, root); !errors.Is(err, ErrOutOfRegion) {
		t.Fatalf("write outside region err = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := List(dir)
	if err != nil || len(files) != 1 || files[0] != path {
		t.Fatalf("list = %v err=%v", files, err)
	}

	f, err = Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	chunks := f.Chunks()
	if len(chunks) != 1 || chunks[0] != pos {
		t.Fatalf("chunks = %v", chunks)
	}
	got, err := f.ReadChunk(pos)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Int("DataVersion") != 2586 {
		t.Fatalf("DataVersion = %d", got.Int("DataVersion"))
	}
	if _, err := f.ReadChunk(chunk.Pos{X: -1, Z: 5}); !errors.Is(err, ErrChunkMissing) {
		t.Fatalf("missing chunk err = %v", err)
	}
}

func TestList_MissingDir(t *testing.T) {
	files, err := List(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(files) != 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "r.0.0.mca")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst, err := Backup(path)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A second backup keeps the first copy.
	if _, err := Backup(path); err != nil {
		t.Fatalf("backup again: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "v1" {
		t.Fatalf("backup content = %q err=%v", b, err)
	}
}
