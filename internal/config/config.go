package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"chunkfix.dev/internal/level/structure"
)

type Config struct {
	WorldDir   string   `yaml:"world_dir" json:"world_dir"`
	Dimensions []string `yaml:"dimensions" json:"dimensions"`

	Workers int   `yaml:"workers" json:"workers"`
	DryRun  bool  `yaml:"dry_run" json:"dry_run"`
	Backup  bool  `yaml:"backup" json:"backup"`
	Seed    int64 `yaml:"seed" json:"seed"`

	ReferenceMaxDistance int `yaml:"reference_max_distance" json:"reference_max_distance"`

	// Structures are registered in addition to the vanilla ones, e.g. ids
	// added by mods that are still installed.
	Structures []string `yaml:"structures,omitempty" json:"structures,omitempty"`

	AuditDir string `yaml:"audit_dir" json:"audit_dir"`
	IndexDB  string `yaml:"index_db" json:"index_db"`
}

func Defaults() Config {
	return Config{
		WorldDir:             "./world",
		Dimensions:           []string{"", "DIM-1", "DIM1"},
		Workers:              4,
		Backup:               true,
		ReferenceMaxDistance: 8,
	}
}

// Load reads a chunkfix.yaml. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("chunkfix.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("chunkfix.yaml: %w", err)
	}
	return cfg, nil
}

// Normalize trims names, removes duplicates, and fills paths derived from WorldDir.
func (c *Config) Normalize() {
	c.WorldDir = strings.TrimSpace(c.WorldDir)
	c.Dimensions = lo.Uniq(lo.Map(c.Dimensions, func(d string, _ int) string {
		return strings.Trim(strings.TrimSpace(d), "/")
	}))
	c.Structures = lo.Uniq(lo.FilterMap(c.Structures, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	}))
	if c.AuditDir == "" && c.WorldDir != "" {
		c.AuditDir = filepath.Join(c.WorldDir, "chunkfix", "audit")
	}
	if c.IndexDB == "" && c.WorldDir != "" {
		c.IndexDB = filepath.Join(c.WorldDir, "chunkfix", "repairs.sqlite")
	}
}

func (c Config) Validate() error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := compiledSchema.Validate(v); err != nil {
		return err
	}
	for _, d := range c.Dimensions {
		if filepath.IsAbs(d) || strings.Contains(d, "..") {
			return fmt.Errorf("dimension %q must be relative to world_dir", d)
		}
	}
	return nil
}

// Registry builds the structure registry: vanilla ids plus Structures.
func (c Config) Registry() *structure.Registry {
	return structure.DefaultRegistry(c.Structures...)
}

var compiledSchema = jsonschema.MustCompileString("chunkfix.schema.json", schema)

const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["world_dir", "workers", "reference_max_distance"],
  "properties": {
    "world_dir": {"type": "string", "minLength": 1},
    "dimensions": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "workers": {"type": "integer", "minimum": 1, "maximum": 256},
    "dry_run": {"type": "boolean"},
    "backup": {"type": "boolean"},
    "seed": {"type": "integer"},
    "reference_max_distance": {"type": "integer", "minimum": 1, "maximum": 64},
    "structures": {
      "type": "array",
      "items": {"type": "string", "pattern": "^[a-z0-9_.:/-]+$"}
    },
    "audit_dir": {"type": "string"},
    "index_db": {"type": "string"}
  }
}`
