package repair

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
	"chunkfix.dev/internal/persistence/chunkio"
	"chunkfix.dev/internal/persistence/region"
)

type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memRecorder) RecordRepair(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func chunkRoot(t *testing.T, pos chunk.Pos, refs map[string][]int64) tag.Compound {
	t.Helper()
	refsTag := tag.Compound{}
	for name, positions := range refs {
		if err := tag.Set(refsTag, name, positions); err != nil {
			t.Fatalf("refs: %v", err)
		}
	}
	structures := tag.Compound{}
	if err := tag.Set(structures, "References", refsTag); err != nil {
		t.Fatalf("structures: %v", err)
	}
	level := tag.Compound{}
	if err := tag.Set(level, "xPos", pos.X); err != nil {
		t.Fatalf("level: %v", err)
	}
	if err := tag.Set(level, "zPos", pos.Z); err != nil {
		t.Fatalf("level: %v", err)
	}
	if err := tag.Set(level, "Structures", structures); err != nil {
		t.Fatalf("level: %v", err)
	}
	root := tag.Compound{}
	if err := tag.Set(root, "Level", level); err != nil {
		t.Fatalf("root: %v", err)
	}
	return root
}

// writeWorld creates <dir>/region/r.0.0.mca with one corrupt and one clean chunk.
func writeWorld(t *testing.T, dir string) (regionPath string, corrupt, clean chunk.Pos) {
	t.Helper()
	corrupt = chunk.Pos{X: 1, Z: 2}
	clean = chunk.Pos{X: 3, Z: 4}
	regionPath = filepath.Join(dir, "region", "r.0.0.mca")
	f, err := region.Create(regionPath)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	defer f.Close()
	if err := f.WriteChunk(corrupt, chunkRoot(t, corrupt, map[string][]int64{
		"village":     {corrupt.Pack()},
		"lost_castle": {chunk.Pos{X: 2, Z: 2}.Pack()},
	})); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	if err := f.WriteChunk(clean, chunkRoot(t, clean, map[string][]int64{
		"village": {clean.Pack()},
	})); err != nil {
		t.Fatalf("write clean: %v", err)
	}
	return regionPath, corrupt, clean
}

func readBack(t *testing.T, path string, pos chunk.Pos) *chunk.Chunk {
	t.Helper()
	f, err := region.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	root, err := f.ReadChunk(pos)
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	c, err := (&chunkio.Serializer{Registry: structure.DefaultRegistry()}).Read(pos, root)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	return c
}

func TestRunner_RepairsAndSaves(t *testing.T) {
	dir := t.TempDir()
	path, corrupt, clean := writeWorld(t, dir)

	rec := &memRecorder{}
	var logs bytes.Buffer
	r := NewRunner(Options{WorldDir: dir, Workers: 2, Backup: true}, log.New(&logs, "", 0), rec, nil)
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Regions != 1 || sum.Chunks != 2 || sum.Repaired != 1 || sum.Saved != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v logs=%s", sum, logs.String())
	}

	if len(rec.entries) != 1 {
		t.Fatalf("entries = %d", len(rec.entries))
	}
	e := rec.entries[0]
	if e.ChunkX != corrupt.X || e.ChunkZ != corrupt.Z || !e.Saved || e.DryRun {
		t.Fatalf("entry = %+v", e)
	}
	if len(e.Dropped) != 1 || e.Dropped[0] != (chunk.Pos{X: 2, Z: 2}).Pack() {
		t.Fatalf("dropped = %v", e.Dropped)
	}
	if e.DigestBefore == "" || e.DigestAfter == "" || e.DigestBefore == e.DigestAfter {
		t.Fatalf("digests = %q -> %q", e.DigestBefore, e.DigestAfter)
	}

	// With the vanilla serializer the repaired chunk now reads clean.
	c := readBack(t, path, corrupt)
	if c.StructureReferences().HasNull() {
		t.Fatalf("null key still on disk")
	}
	if c.StructureReferences().Len() != 1 {
		t.Fatalf("references = %d", c.StructureReferences().Len())
	}
	if readBack(t, path, clean).StructureReferences().HasNull() {
		t.Fatalf("clean chunk corrupted")
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("backup missing: %v", err)
	}

	// A second pass finds nothing left to repair.
	rec2 := &memRecorder{}
	sum, err = NewRunner(Options{WorldDir: dir}, log.New(io.Discard, "", 0), rec2).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Repaired != 0 || len(rec2.entries) != 0 {
		t.Fatalf("second run repaired %d", sum.Repaired)
	}
}

func TestRunner_UnreadableRegionDoesNotStopScan(t *testing.T) {
	dir := t.TempDir()
	path, corrupt, _ := writeWorld(t, dir)
	empty := filepath.Join(dir, "region", "r.-1.0.mca")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty region: %v", err)
	}

	rec := &memRecorder{}
	var logs bytes.Buffer
	sum, err := NewRunner(Options{WorldDir: dir, Workers: 2}, log.New(&logs, "", 0), rec).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Regions != 2 || sum.Failed != 1 || sum.Repaired != 1 || sum.Saved != 1 {
		t.Fatalf("summary = %+v logs=%s", sum, logs.String())
	}
	if !strings.Contains(logs.String(), "r.-1.0.mca") {
		t.Fatalf("bad region not logged: %s", logs.String())
	}
	if readBack(t, path, corrupt).StructureReferences().HasNull() {
		t.Fatalf("corrupt chunk not repaired")
	}
}

func TestRunner_DryRunLeavesFilesAlone(t *testing.T) {
	dir := t.TempDir()
	path, corrupt, _ := writeWorld(t, dir)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	rec := &memRecorder{}
	sum, err := NewRunner(Options{WorldDir: dir, DryRun: true, Backup: true}, log.New(io.Discard, "", 0), rec).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Repaired != 1 || sum.Saved != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(rec.entries) != 1 || !rec.entries[0].DryRun || rec.entries[0].Saved {
		t.Fatalf("entries = %+v", rec.entries)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("dry run modified the region file")
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote a backup: %v", err)
	}
	if !readBack(t, path, corrupt).StructureReferences().HasNull() {
		t.Fatalf("dry run repaired the chunk on disk")
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(Options{WorldDir: dir}, log.New(io.Discard, "", 0)).Run(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
