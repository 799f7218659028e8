package repair

// Entry describes one chunk whose null structure reference was removed.
type Entry struct {
	RecordedAt string `json:"recorded_at"`
	World      string `json:"world"`
	Dimension  string `json:"dimension"`
	Region     string `json:"region"`
	ChunkX     int32  `json:"chunk_x"`
	ChunkZ     int32  `json:"chunk_z"`

	// Dropped holds the packed positions the null entry referenced.
	Dropped []int64 `json:"dropped"`

	DigestBefore string `json:"digest_before"`
	DigestAfter  string `json:"digest_after,omitempty"`

	DryRun bool   `json:"dry_run"`
	Saved  bool   `json:"saved"`
	Error  string `json:"error,omitempty"`
}

// Recorder receives repair entries. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordRepair(e Entry) error
}

type Summary struct {
	Regions  int `json:"regions"`
	Chunks   int `json:"chunks"`
	Repaired int `json:"repaired"`
	Saved    int `json:"saved"`
	Failed   int `json:"failed"`
}

func (s *Summary) add(o Summary) {
	s.Regions += o.Regions
	s.Chunks += o.Chunks
	s.Repaired += o.Repaired
	s.Saved += o.Saved
	s.Failed += o.Failed
}
