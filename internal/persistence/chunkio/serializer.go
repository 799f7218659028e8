package chunkio

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Tnze/go-mc/nbt"
	"github.com/scylladb/go-set/i64set"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
)

var (
	// ErrNullStructureKey is returned by Write when a reference entry has no
	// structure type. Such a chunk cannot be saved.
	ErrNullStructureKey = errors.New("structure reference keyed by null structure")
	ErrMissingLevel     = errors.New("chunk tag has no Level compound")
)

const DefaultMaxReferenceDistance = 8

// Serializer converts chunk tags to chunks and back.
type Serializer struct {
	Registry *structure.Registry
	Seed     int64

	// MaxReferenceDistance drops references whose start lies farther away
	// (chessboard distance in chunks). Zero means DefaultMaxReferenceDistance.
	MaxReferenceDistance int

	Logger *log.Logger
	Hooks  Hooks
}

func (s *Serializer) hooks() Hooks {
	if s.Hooks == nil {
		return Vanilla
	}
	return s.Hooks
}

func (s *Serializer) maxDistance() int {
	if s.MaxReferenceDistance <= 0 {
		return DefaultMaxReferenceDistance
	}
	return s.MaxReferenceDistance
}

func (s *Serializer) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Read builds a chunk from its root tag. pos is the slot the tag was stored in.
func (s *Serializer) Read(pos chunk.Pos, root tag.Compound) (*chunk.Chunk, error) {
	if !root.Has("Level") {
		return nil, fmt.Errorf("chunk %s: %w", pos, ErrMissingLevel)
	}
	level := root.Compound("Level")
	if got := (chunk.Pos{X: level.Int("xPos"), Z: level.Int("zPos")}); got != pos {
		s.logf("Chunk file at %s is in the wrong location; relocating. (Expected %s, got %s)", pos, pos, got)
	}

	h := s.hooks().ForRead()
	c := chunk.New(pos, root)

	structures := level.Compound("Structures")
	c.SetStructureStarts(s.unpackStarts(h, level, structures))

	refs := s.unpackReferences(pos, structures)
	h.AfterUnpackReferences(pos, structures, refs)
	h.SetReferences(c, refs)
	return c, nil
}

func (s *Serializer) unpackStarts(h ReadHooks, level, structures tag.Compound) []structure.Start {
	startsTag := structures.Compound("Starts")
	var out []structure.Start
	for _, name := range startsTag.Keys() {
		t := s.Registry.Lookup(name)
		if t == nil {
			msg := h.UnknownStartMessage(UnknownStartTemplate, s.Registry, level, s.Seed)
			s.logf("%s", formatTemplate(msg, name))
			continue
		}
		st := startsTag.Compound(name)
		out = append(out, structure.Start{
			Type:    t,
			ChunkX:  st.Int("ChunkX"),
			ChunkZ:  st.Int("ChunkZ"),
			Raw:     startsTag[name],
			Invalid: st.String("id") == structure.InvalidStartID,
		})
	}
	return out
}

func (s *Serializer) unpackReferences(pos chunk.Pos, structures tag.Compound) *structure.References {
	refsTag := structures.Compound("References")
	refs := structure.NewReferences()
	maxDist := s.maxDistance()
	for _, name := range refsTag.Keys() {
		set := i64set.New()
		for _, packed := range refsTag.LongArray(name) {
			start := chunk.Unpack(packed)
			if start.ChessboardDistance(pos) > maxDist {
				s.logf("Found invalid structure reference [ %s @ %s ] for chunk %s.", name, start, pos)
				continue
			}
			set.Add(packed)
		}
		// Unknown names all land on the nil key; later ones overwrite earlier ones.
		refs.Put(s.Registry.Lookup(name), set)
	}
	return refs
}

// Write produces the root tag for c. Every entry of the original tag except
// Level.Structures is carried over unchanged.
func (s *Serializer) Write(c *chunk.Chunk) (tag.Compound, error) {
	structures, err := packStructures(c)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", c.Pos(), err)
	}

	src := c.Root()
	level := src.Compound("Level")
	if err := tag.Set(level, "Structures", structures); err != nil {
		return nil, err
	}
	out := make(tag.Compound, len(src))
	for k, v := range src {
		out[k] = v
	}
	if err := tag.Set(out, "Level", level); err != nil {
		return nil, err
	}
	return out, nil
}

func packStructures(c *chunk.Chunk) (tag.Compound, error) {
	starts := tag.Compound{}
	for _, st := range c.StructureStarts() {
		starts[st.Type.Name] = st.Raw
	}

	refs := tag.Compound{}
	var err error
	c.StructureReferences().Each(func(t *structure.Type, positions *i64set.Set) bool {
		if t == nil {
			err = ErrNullStructureKey
			return false
		}
		var raw nbt.RawMessage
		raw, err = tag.Raw(structure.Sorted(positions))
		if err != nil {
			return false
		}
		refs[t.Name] = raw
		return true
	})
	if err != nil {
		return nil, err
	}

	out := tag.Compound{}
	if err := tag.Set(out, "Starts", starts); err != nil {
		return nil, err
	}
	if err := tag.Set(out, "References", refs); err != nil {
		return nil, err
	}
	return out, nil
}

// formatTemplate fills "{}" placeholders left to right.
func formatTemplate(template string, args ...any) string {
	var b strings.Builder
	rest := template
	for _, a := range args {
		i := strings.Index(rest, "{}")
		if i < 0 {
			break
		}
		b.WriteString(rest[:i])
		fmt.Fprint(&b, a)
		rest = rest[i+2:]
	}
	b.WriteString(rest)
	return b.String()
}
