package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunkfix.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 4 || cfg.ReferenceMaxDistance != 8 || !cfg.Backup {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.IndexDB != filepath.Join("./world", "chunkfix", "repairs.sqlite") {
		t.Fatalf("index db = %q", cfg.IndexDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
world_dir: /srv/mc/world
dimensions: ["", "DIM-1/", "DIM-1"]
workers: 2
dry_run: true
structures: [" Mod:Tower ", "mod:tower", ""]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorldDir != "/srv/mc/world" || cfg.Workers != 2 || !cfg.DryRun {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Dimensions) != 2 || cfg.Dimensions[0] != "" || cfg.Dimensions[1] != "DIM-1" {
		t.Fatalf("dimensions = %q", cfg.Dimensions)
	}
	if len(cfg.Structures) != 1 || cfg.Structures[0] != "mod:tower" {
		t.Fatalf("structures = %q", cfg.Structures)
	}
	if cfg.Registry().Lookup("mod:tower") == nil || cfg.Registry().Lookup("village") == nil {
		t.Fatalf("registry missing names")
	}
	if cfg.AuditDir != filepath.Join("/srv/mc/world", "chunkfix", "audit") {
		t.Fatalf("audit dir = %q", cfg.AuditDir)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"zero workers":  "world_dir: w\nworkers: 0\n",
		"distance":      "world_dir: w\nreference_max_distance: 0\n",
		"escaping dim":  "world_dir: w\ndimensions: [\"../other\"]\n",
		"bad yaml":      "world_dir: [\n",
		"bad structure": "world_dir: w\nstructures: [\"has space\"]\n",
		"empty world":   "world_dir: \"\"\n",
		"no dimensions": "world_dir: w\ndimensions: []\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
