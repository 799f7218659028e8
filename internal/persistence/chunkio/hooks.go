package chunkio

import (
	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
)

// UnknownStartTemplate is logged when a structure start names an unregistered
// structure. "{}" is replaced with the start's name.
const UnknownStartTemplate = "Unknown structure start: {}"

// Hooks extends Serializer.Read. ForRead is called once at the start of every
// Read; the returned ReadHooks serve that call only, so per-read state never
// crosses chunks.
type Hooks interface {
	ForRead() ReadHooks
}

type ReadHooks interface {
	// AfterUnpackReferences sees the reference map right after it was built
	// from the Structures tag and may edit it in place.
	AfterUnpackReferences(pos chunk.Pos, structures tag.Compound, refs *structure.References)
	// SetReferences installs refs on the chunk. Implementations must end by
	// calling c.SetStructureReferences.
	SetReferences(c *chunk.Chunk, refs *structure.References)
	// UnknownStartMessage returns the template to log for an unknown start.
	UnknownStartMessage(template string, reg *structure.Registry, level tag.Compound, seed int64) string
}

// Vanilla performs the serializer's unmodified behaviour.
var Vanilla Hooks = vanilla{}

type vanilla struct{}

func (vanilla) ForRead() ReadHooks { return vanilla{} }

func (vanilla) AfterUnpackReferences(chunk.Pos, tag.Compound, *structure.References) {}

func (vanilla) SetReferences(c *chunk.Chunk, refs *structure.References) {
	c.SetStructureReferences(refs)
}

func (vanilla) UnknownStartMessage(template string, _ *structure.Registry, _ tag.Compound, _ int64) string {
	return template
}
