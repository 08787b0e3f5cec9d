// Command journal-export dumps the signal journal to a Parquet file for
// offline analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"telebridge/internal/config"
	"telebridge/internal/journal"
)

func main() {
	_ = godotenv.Load()

	var (
		out   = flag.String("out", "", "output path (default <export_dir>/journal-<date>.parquet)")
		limit = flag.Int("limit", 0, "max entries to export, newest first (0 = default)")
	)
	flag.Parse()

	cfgPath := "config/telebridge.yaml"
	if p := os.Getenv("TELEBRIDGE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	jrn, err := journal.Open(cfg.Storage.JournalPath)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer jrn.Close()

	path := *out
	if path == "" {
		dir := cfg.Storage.ExportDir
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, fmt.Sprintf("journal-%s.parquet", time.Now().Format("2006-01-02")))
	}

	n, err := jrn.Export(context.Background(), path, *limit)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	fmt.Printf("exported %d entries to %s\n", n, path)
}
