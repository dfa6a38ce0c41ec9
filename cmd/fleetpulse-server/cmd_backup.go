package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/roomoperable/fleetpulse/internal/backup"
)

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	output := fs.String("output", "", "output file path (default: fleetpulse-backup-{timestamp}.tar.gz)")
	dbPath := fs.String("db", "fleetpulse.db", "path to the registry database")
	configFile := fs.String("config", "", "path to config file to include in backup")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *output == "" {
		*output = fmt.Sprintf("fleetpulse-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}

	ctx := context.Background()
	if err := backup.Backup(ctx, *dbPath, *configFile, *output); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup created: %s\n", *output)
}
