package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/joho/godotenv"

	"github.com/jlin/tutorvocab/pkg/db"
	"github.com/jlin/tutorvocab/pkg/export"
	"github.com/jlin/tutorvocab/pkg/recorder"
	"github.com/jlin/tutorvocab/pkg/review"
)

const usageText = `usage: tutorvocab <command> [flags]

commands:
  record    record a finished conversation transcript
  import    backfill a directory of saved transcripts
  review    quiz yourself on the vocabulary bank
  vocab     list captured vocabulary
  sessions  list recorded sessions
  complete  fill in the missing fields of a partial item
  export    write the vocabulary list to .xlsx or .csv
`

func main() {
	// A missing .env is fine; the environment may carry the settings.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "record":
		cmdRecord(args)
	case "import":
		cmdImport(args)
	case "review":
		cmdReview(args)
	case "vocab":
		cmdVocab(args)
	case "sessions":
		cmdSessions(args)
	case "complete":
		cmdComplete(args)
	case "export":
		cmdExport(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}
}

func defaultDBPath() string {
	if p := os.Getenv("TUTORVOCAB_DB"); p != "" {
		return p
	}
	return "tutorvocab.db"
}

func openStore(path string) *db.Store {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}
	conn, err := db.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return db.New(conn)
}

func cmdRecord(args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	file := fs.String("file", "-", "Transcript file to record, or - for stdin")
	html := fs.Bool("html", false, "Treat the file as a saved HTML export and extract its text")
	conversation := fs.String("conversation", "", "External conversation identifier stored in session metadata")
	fs.Parse(args)

	var (
		text    string
		started = time.Now()
		endedAt = time.Now()
	)
	if *file == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("Failed to read stdin: %v", err)
		}
		text = string(data)
	} else {
		data, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("Failed to read transcript: %v", err)
		}
		if info, err := os.Stat(*file); err == nil {
			started = info.ModTime()
			endedAt = info.ModTime()
		}
		text = string(data)
		if *html {
			abs, err := filepath.Abs(*file)
			if err != nil {
				log.Fatalf("Failed to resolve path: %v", err)
			}
			article, err := readability.FromReader(bytes.NewReader(data), &url.URL{Scheme: "file", Path: abs})
			if err != nil {
				log.Fatalf("Failed to extract transcript from HTML: %v", err)
			}
			text = article.TextContent
		}
	}

	store := openStore(*dbPath)
	rec := recorder.New(store)
	rec.Logger = log.New(os.Stderr, "", 0)

	sessionID, err := store.CreateSession(started)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	var meta map[string]string
	if *conversation != "" {
		meta = map[string]string{"conversation_id": *conversation}
	}
	sum, err := rec.Record(sessionID, endedAt, text, meta)
	if err != nil {
		log.Fatalf("Failed to record session: %v", err)
	}

	fmt.Printf("Saved session %s\n", sessionID)
	if sum.Candidates == 0 {
		fmt.Println("No vocab candidates detected.")
		return
	}
	fmt.Printf("Captured %d vocab items (%d failed)\n", sum.Succeeded, sum.Failed)
	for _, e := range sum.Errors {
		fmt.Fprintf(os.Stderr, "  %v\n", e)
	}
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	dir := fs.String("dir", "", "Directory of saved transcript files")
	workers := fs.Int("workers", 4, "Concurrent files")
	fs.Parse(args)
	if *dir == "" {
		log.Fatal("Please provide a -dir to import")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := openStore(*dbPath)
	rec := recorder.New(store)
	rec.Workers = *workers
	rec.Logger = log.New(os.Stderr, "", 0)

	sum, err := rec.ImportDir(ctx, *dir)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	for _, res := range sum.Results {
		if res.Err != nil {
			fmt.Printf("FAIL %s: %v\n", res.Path, res.Err)
			continue
		}
		fmt.Printf("ok   %s: session %s, %d items banked\n", res.Path, res.SessionID, res.Summary.Succeeded)
	}
	fmt.Printf("Imported %d files, %d failed.\n", sum.Files, sum.Failed)
}

func cmdReview(args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	limit := fs.Int("limit", 5, "Items to review this sitting, 0 for all")
	fs.Parse(args)

	store := openStore(*dbPath)
	in := bufio.NewReader(os.Stdin)
	presented := make(map[int64]bool)
	asked := 0

	for *limit <= 0 || asked < *limit {
		item, err := review.Next(store, presented)
		if err != nil {
			log.Fatalf("Failed to pick a review item: %v", err)
		}
		if item == nil {
			if asked == 0 {
				fmt.Println("No vocab to review. Record a chat first.")
			} else {
				fmt.Println("Review done.")
			}
			return
		}

		fmt.Printf("\n[%d] %s\n", item.ID, review.FormatItem(*item))
		if item.Example != "" {
			fmt.Printf("例句: %s\n", item.Example)
		}
		fmt.Print("Did you recall it? (p=pass / f=fail / q=quit): ")
		answer, err := in.ReadString('\n')
		if err != nil && answer == "" {
			fmt.Println()
			return
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer == "q" {
			return
		}
		outcome := db.ResultFail
		if answer == "p" || answer == "pass" || answer == "y" {
			outcome = db.ResultPass
		}
		if err := store.RecordOutcome(item.ID, outcome); err != nil {
			log.Fatalf("Failed to record outcome: %v", err)
		}
		fmt.Printf("Marked %d as %s\n", item.ID, outcome)
		presented[item.ID] = true
		asked++
	}
	fmt.Println("Review done.")
}

func cmdVocab(args []string) {
	fs := flag.NewFlagSet("vocab", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	limit := fs.Int("limit", 20, "Number of items to list, 0 for all")
	fs.Parse(args)

	store := openStore(*dbPath)
	items, err := store.ListVocab(*limit)
	if err != nil {
		log.Fatalf("Failed to list vocab: %v", err)
	}
	if len(items) == 0 {
		fmt.Println("No vocabulary captured yet. Record a chat first.")
		return
	}
	fmt.Println("Vocabulary (newest first):")
	for _, item := range items {
		last := string(item.LastResult)
		if last == "" {
			last = "-"
		}
		fmt.Printf("%d: %s | seen %d | last=%s\n", item.ID, review.FormatItem(item), item.SeenCount, last)
	}
}

func cmdSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	limit := fs.Int("limit", 10, "Number of sessions to list, 0 for all")
	fs.Parse(args)

	store := openStore(*dbPath)
	sessions, err := store.ListSessions(*limit)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return
	}
	for _, sess := range sessions {
		ended := "open"
		if sess.EndedAt.Valid {
			ended = sess.EndedAt.Time.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("%s | %s .. %s | %s\n",
			sess.ID,
			sess.StartedAt.Local().Format("2006-01-02 15:04"),
			ended,
			snippet(sess.Transcript, 60))
	}
}

func cmdComplete(args []string) {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	id := fs.Int64("id", 0, "Vocab item identifier")
	chinese := fs.String("chinese", "", "Chinese term")
	pinyin := fs.String("pinyin", "", "Pinyin romanization")
	example := fs.String("example", "", "Example sentence")
	fs.Parse(args)
	if *id == 0 {
		log.Fatal("Please provide an -id to complete")
	}

	store := openStore(*dbPath)
	if err := store.CompleteVocab(*id, *chinese, *pinyin, *example); err != nil {
		log.Fatalf("Failed to complete item: %v", err)
	}
	item, err := store.GetVocab(*id)
	if err != nil {
		log.Fatalf("Failed to reload item: %v", err)
	}
	fmt.Printf("%d: %s\n", item.ID, review.FormatItem(*item))
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBPath(), "Path to SQLite database")
	out := fs.String("out", "vocab.xlsx", "Output file (.xlsx or .csv)")
	limit := fs.Int("limit", 0, "Number of items to export, 0 for all")
	fs.Parse(args)

	store := openStore(*dbPath)
	items, err := store.ListVocab(*limit)
	if err != nil {
		log.Fatalf("Failed to list vocab: %v", err)
	}
	if err := export.WriteFile(*out, items); err != nil {
		log.Fatalf("Failed to export: %v", err)
	}
	fmt.Printf("Exported %d items to %s\n", len(items), *out)
}

// snippet renders the first n runes of a transcript on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
