// Command import_books publishes every book listed in a books.yaml manifest,
// using the session stored by `libreshelf login`.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"

	"libreshelf/internal/config"
	"libreshelf/library"
)

func main() {
	dir := flag.String("dir", "books", "directory holding books.yaml and the files it names")
	cfgFile := flag.String("config", "", "config file (default: ./libreshelf.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	config.InitViper(*cfgFile)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	db, err := openSession(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	shelf := library.NewShelf(db,
		library.WithBaseURL(cfg.API.BaseURL),
		library.WithTimeout(cfg.API.Timeout),
	)

	entries, err := readManifest(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Importing %d book(s) from %s...\n", len(entries), *dir)
	report, err := importBooks(ctx, shelf, *dir, entries, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	report.print(os.Stdout)
	if report.errors > 0 {
		os.Exit(1)
	}
}

func openSession(cfg *config.Config) (*library.SessionDB, error) {
	var opts []library.SessionDBOption
	if cfg.Session.SealEnabled() {
		key, err := library.LoadOrCreateKey(cfg.Session.KeyFile)
		if err != nil {
			return nil, err
		}
		sealer, err := library.NewSealer(key)
		if err != nil {
			return nil, err
		}
		opts = append(opts, library.WithSealer(sealer))
	}
	return library.OpenSessionDB(cfg.Session.Path, opts...)
}
