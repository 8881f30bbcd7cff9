// Command transcripts is an operator tool for inspecting the transcript
// archive directly from the data store.
//
// Usage:
//
//	transcripts -user <user-id> [-db <sqlite-path>] [-id <transcript-id>]
//
// With -id it prints one transcript as JSON, otherwise the user's full
// archive, most recent first. DATABASE_URL switches to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

func main() {
	userID := flag.String("user", "", "user id to inspect (required)")
	dbPath := flag.String("db", "", "sqlite database path")
	transcriptID := flag.String("id", "", "print a single transcript")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	var db store.DataStore
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, databaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres connection failed: %v\n", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqlite open failed: %v\n", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		db = sqliteStore
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *transcriptID != "" {
		transcript, err := db.GetTranscript(ctx, *userID, *transcriptID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lookup failed: %v\n", err)
			os.Exit(1)
		}
		if transcript == nil {
			fmt.Fprintln(os.Stderr, "transcript not found")
			os.Exit(1)
		}
		enc.Encode(transcript)
		return
	}

	transcripts, err := db.ListTranscripts(ctx, *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing failed: %v\n", err)
		os.Exit(1)
	}
	enc.Encode(transcripts)
}
