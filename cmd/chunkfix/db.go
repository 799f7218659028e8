package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"chunkfix.dev/internal/config"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	configPath := fs.String("config", "", "path to chunkfix.yaml (optional)")
	dbPath := fs.String("db", "", "sqlite index path (default: from config)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "repairs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatalf("load config: %v", err)
		}
		path = cfg.IndexDB
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fatalf("open: %v", err)
	}
	defer db.Close()

	enc := json.NewEncoder(os.Stdout)
	switch q {
	case "repairs":
		rows, err := db.Query(`SELECT recorded_at,dimension,region,chunk_x,chunk_z,dropped,dry_run,saved,error FROM repairs ORDER BY id DESC LIMIT ?`, *limit)
		if err != nil {
			fatalf("query: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RecordedAt string `json:"recorded_at"`
				Dimension  string `json:"dimension"`
				Region     string `json:"region"`
				ChunkX     int    `json:"chunk_x"`
				ChunkZ     int    `json:"chunk_z"`
				Dropped    int    `json:"dropped"`
				DryRun     bool   `json:"dry_run"`
				Saved      bool   `json:"saved"`
				Error      string `json:"error,omitempty"`
			}
			if err := rows.Scan(&r.RecordedAt, &r.Dimension, &r.Region, &r.ChunkX, &r.ChunkZ, &r.Dropped, &r.DryRun, &r.Saved, &r.Error); err != nil {
				fatalf("scan: %v", err)
			}
			_ = enc.Encode(r)
		}
		if err := rows.Err(); err != nil {
			fatalf("rows: %v", err)
		}

	case "runs":
		rows, err := db.Query(`SELECT started_at,finished_at,world,dry_run,regions,chunks,repaired,saved,failed FROM runs ORDER BY id DESC LIMIT ?`, *limit)
		if err != nil {
			fatalf("query: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				StartedAt  string `json:"started_at"`
				FinishedAt string `json:"finished_at"`
				World      string `json:"world"`
				DryRun     bool   `json:"dry_run"`
				Regions    int    `json:"regions"`
				Chunks     int    `json:"chunks"`
				Repaired   int    `json:"repaired"`
				Saved      int    `json:"saved"`
				Failed     int    `json:"failed"`
			}
			if err := rows.Scan(&r.StartedAt, &r.FinishedAt, &r.World, &r.DryRun, &r.Regions, &r.Chunks, &r.Repaired, &r.Saved, &r.Failed); err != nil {
				fatalf("scan: %v", err)
			}
			_ = enc.Encode(r)
		}
		if err := rows.Err(); err != nil {
			fatalf("rows: %v", err)
		}

	default:
		fatalf("unknown query %q (want repairs or runs)", q)
	}
}
