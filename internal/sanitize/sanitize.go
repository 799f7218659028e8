// Package sanitize drops structure references keyed by a null structure
// while chunks are read, and marks the affected chunks for saving so the
// corrected references reach disk.
package sanitize

import (
	"fmt"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
	"chunkfix.dev/internal/persistence/chunkio"
)

// Hooks plugs into chunkio.Serializer. The zero value is ready to use and
// safe to share between goroutines.
type Hooks struct {
	// OnRemove, when set, is called with the positions held by every removed
	// null entry. It runs on the reading goroutine.
	OnRemove func(pos chunk.Pos, positions []int64)
}

func (h Hooks) ForRead() chunkio.ReadHooks {
	return &read{onRemove: h.OnRemove}
}

// read carries the correction flag of a single Read call.
type read struct {
	onRemove    func(pos chunk.Pos, positions []int64)
	needsSaving bool
}

func (r *read) AfterUnpackReferences(pos chunk.Pos, _ tag.Compound, refs *structure.References) {
	positions, ok := refs.Get(nil)
	if !ok || !refs.Remove(nil) {
		return
	}
	r.needsSaving = true
	if r.onRemove != nil {
		r.onRemove(pos, structure.Sorted(positions))
	}
}

func (r *read) SetReferences(c *chunk.Chunk, refs *structure.References) {
	if r.needsSaving {
		r.needsSaving = false
		c.SetModified(true)
	}
	c.SetStructureReferences(refs)
}

func (r *read) UnknownStartMessage(template string, _ *structure.Registry, level tag.Compound, _ int64) string {
	return fmt.Sprintf("%s at chunk [%d, %d]", template, level.Int("xPos"), level.Int("zPos"))
}
