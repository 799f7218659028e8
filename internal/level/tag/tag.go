package tag

import (
	"fmt"
	"sort"

	"github.com/Tnze/go-mc/nbt"
	"github.com/samber/lo"
)

// Compound is an NBT compound whose values stay encoded until they are read.
// Entries the caller never replaces are written back exactly as decoded.
type Compound map[string]nbt.RawMessage

func Decode(data []byte) (Compound, error) {
	c := Compound{}
	if err := nbt.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode nbt: %w", err)
	}
	return c, nil
}

func (c Compound) Encode() ([]byte, error) {
	b, err := nbt.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode nbt: %w", err)
	}
	return b, nil
}

func (c Compound) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Keys returns the entry names in lexical order. NBT compounds carry no
// meaningful order once decoded into a map.
func (c Compound) Keys() []string {
	keys := lo.Keys(map[string]nbt.RawMessage(c))
	sort.Strings(keys)
	return keys
}

// Int reads a numeric entry as an int. Missing or non-numeric entries read as 0.
func (c Compound) Int(name string) int32 {
	v, ok := c.number(name)
	if !ok {
		return 0
	}
	return int32(v)
}

func (c Compound) Long(name string) int64 {
	v, _ := c.number(name)
	return v
}

func (c Compound) number(name string) (int64, bool) {
	raw, ok := c[name]
	if !ok {
		return 0, false
	}
	switch raw.Type {
	case nbt.TagByte:
		var v int8
		if raw.Unmarshal(&v) != nil {
			return 0, false
		}
		return int64(v), true
	case nbt.TagShort:
		var v int16
		if raw.Unmarshal(&v) != nil {
			return 0, false
		}
		return int64(v), true
	case nbt.TagInt:
		var v int32
		if raw.Unmarshal(&v) != nil {
			return 0, false
		}
		return int64(v), true
	case nbt.TagLong:
		var v int64
		if raw.Unmarshal(&v) != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func (c Compound) String(name string) string {
	raw, ok := c[name]
	if !ok || raw.Type != nbt.TagString {
		return ""
	}
	var s string
	if raw.Unmarshal(&s) != nil {
		return ""
	}
	return s
}

// LongArray returns nil when the entry is missing or not a long array.
func (c Compound) LongArray(name string) []int64 {
	raw, ok := c[name]
	if !ok || raw.Type != nbt.TagLongArray {
		return nil
	}
	var out []int64
	if raw.Unmarshal(&out) != nil {
		return nil
	}
	return out
}

// Compound returns an empty compound when the entry is missing or of another type.
func (c Compound) Compound(name string) Compound {
	raw, ok := c[name]
	if !ok || raw.Type != nbt.TagCompound {
		return Compound{}
	}
	sub := Compound{}
	if raw.Unmarshal(&sub) != nil {
		return Compound{}
	}
	return sub
}

// Set encodes v and stores it under name.
func Set[T any](c Compound, name string, v T) error {
	raw, err := Raw(v)
	if err != nil {
		return fmt.Errorf("set %q: %w", name, err)
	}
	c[name] = raw
	return nil
}

type wrapper[T any] struct {
	V T `nbt:"v"`
}

// Raw encodes a single value into its tag payload.
func Raw[T any](v T) (nbt.RawMessage, error) {
	b, err := nbt.Marshal(wrapper[T]{V: v})
	if err != nil {
		return nbt.RawMessage{}, err
	}
	c := Compound{}
	if err := nbt.Unmarshal(b, &c); err != nil {
		return nbt.RawMessage{}, err
	}
	return c["v"], nil
}
