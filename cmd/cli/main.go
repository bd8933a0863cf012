package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiscaldata/invoice-agent/internal/agent"
	"github.com/fiscaldata/invoice-agent/internal/archive"
	"github.com/fiscaldata/invoice-agent/internal/config"
	"github.com/fiscaldata/invoice-agent/internal/logger"
	"github.com/fiscaldata/invoice-agent/internal/merge"
	"github.com/fiscaldata/invoice-agent/internal/session"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "merge":
		runMerge(log)
	case "chat":
		runChat(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Invoice Agent CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  merge     Merge a header/items CSV pair and preview the result")
	fmt.Println("  chat      Merge a CSV pair and ask questions interactively")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nFile arguments accept local paths or gs:// URIs.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

func runMerge(log zerolog.Logger) {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	headerPath := fs.String("header", "", "Invoice header CSV (path or gs:// URI)")
	itemsPath := fs.String("items", "", "Invoice items CSV (path or gs:// URI)")
	outPath := fs.String("out", "", "Write the merged table to this CSV file (optional)")
	configPath := fs.String("config", "", "Path to YAML config file (optional)")
	fs.Parse(os.Args[2:])

	if *headerPath == "" || *itemsPath == "" {
		log.Fatal().Msg("Usage: cli merge -header FILE -items FILE [-out FILE]")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	result, err := mergeSources(ctx, cfg, *headerPath, *itemsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Merge failed")
	}

	fmt.Printf("Merged %d rows on column %q.\n\n", result.Table.NumRows(), result.JoinKey)
	printPreview(result)

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		if err := result.Table.WriteCSV(f); err != nil {
			log.Fatal().Err(err).Msg("Failed to write merged table")
		}
		fmt.Printf("\nMerged table written to %s\n", *outPath)
	}
}

func runChat(log zerolog.Logger) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	headerPath := fs.String("header", "", "Invoice header CSV (path or gs:// URI)")
	itemsPath := fs.String("items", "", "Invoice items CSV (path or gs:// URI)")
	configPath := fs.String("config", "", "Path to YAML config file (optional)")
	fs.Parse(os.Args[2:])

	if *headerPath == "" || *itemsPath == "" {
		log.Fatal().Msg("Usage: cli chat -header FILE -items FILE")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	headerCSV, err := readSource(ctx, *headerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read header file")
	}
	itemsCSV, err := readSource(ctx, *itemsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read items file")
	}

	newAnswerer := func(ctx context.Context) (agent.Answerer, error) {
		return agent.NewGemini(ctx, cfg.Model)
	}
	manager := session.NewManager(newAnswerer, merge.Options{
		KeyCandidates: cfg.KeyCandidates,
		DateColumns:   cfg.DateColumns,
	}, cfg.AnswerLanguage)

	s, err := manager.CreateFromBytes(ctx, headerCSV, itemsCSV)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build session")
	}

	fmt.Printf("Session ready: %d rows merged on column %q.\n", s.Table.NumRows(), s.JoinKey)
	fmt.Println("Type a question and press Enter. Ctrl-D or 'sair' to quit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "sair" || question == "exit" || question == "quit" {
			break
		}

		askCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		answer, err := s.Ask(askCtx, question)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("Agent failed to answer")
			continue
		}

		fmt.Println(answer)
	}

	fmt.Println("Bye.")
}

// mergeSources runs the merge over local files or archived GCS objects.
func mergeSources(ctx context.Context, cfg *config.Config, headerPath, itemsPath string) (*merge.Result, error) {
	headerCSV, err := readSource(ctx, headerPath)
	if err != nil {
		return nil, fmt.Errorf("reading header source: %w", err)
	}
	itemsCSV, err := readSource(ctx, itemsPath)
	if err != nil {
		return nil, fmt.Errorf("reading items source: %w", err)
	}

	return merge.Merge(bytes.NewReader(headerCSV), bytes.NewReader(itemsCSV), merge.Options{
		KeyCandidates: cfg.KeyCandidates,
		DateColumns:   cfg.DateColumns,
	})
}

func readSource(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "gs://") {
		return archive.Fetch(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func printPreview(result *merge.Result) {
	head := result.Table.Head(5)
	var b strings.Builder
	if err := head.WriteCSV(&b); err != nil {
		return
	}
	fmt.Println("Preview (first rows):")
	fmt.Print(b.String())
}
