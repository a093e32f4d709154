// Package main is the Erabu CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/erabu/internal/cli"
	"github.com/hyperjump/erabu/internal/config"
	"github.com/hyperjump/erabu/internal/embedding"
	"github.com/hyperjump/erabu/internal/ingest"
	"github.com/hyperjump/erabu/internal/lexical"
	"github.com/hyperjump/erabu/internal/models"
	"github.com/hyperjump/erabu/internal/search"
	"github.com/hyperjump/erabu/internal/server"
	"github.com/hyperjump/erabu/internal/store"
	"github.com/hyperjump/erabu/internal/watcher"
	"github.com/hyperjump/erabu/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/erabu/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "erabu serve" from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "watch":
		runWatch()
	case "query":
		runQuery()
	case "ingest":
		runIngest()
	case "stats":
		runStats()
	case "version", "--version", "-v":
		fmt.Printf("erabu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, query details, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watchSvc, err := startWatcher(watchCtx, cfg.Watch.Directories, cfg.Watch.Extensions,
		components.Orchestrator, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}

	srv := server.NewServer(components.Retriever, components.Orchestrator, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// startWatcher builds and starts a directory watcher feeding files into the
// orchestrator, then syncs files already on disk. Returns nil when dirs is
// empty.
func startWatcher(
	ctx context.Context,
	dirs, exts []string,
	orch *ingest.Orchestrator,
	logger *zap.Logger,
	debug bool,
) (*watcher.Watcher, error) {
	if len(dirs) == 0 {
		return nil, nil
	}
	opts := []watcher.Option{}
	if debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	w := watcher.NewWatcher(dirs, exts, func(path string) {
		if _, err := orch.IngestFile(context.Background(), path, exts); err != nil {
			logger.Warn("watch ingest file failed", zap.String("path", path), zap.Error(err))
		}
	}, opts...)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	w.SyncExistingFiles()
	return w, nil
}

// runWatch watches directories and ingests new or changed transcript files,
// without starting the HTTP server. Positional arguments override the
// configured watch directories.
func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, ingestion details)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	dirs := cfg.Watch.Directories
	if fs.NArg() > 0 {
		dirs = fs.Args()
	}
	if len(dirs) == 0 {
		fmt.Println("Nothing to watch: pass directories as arguments or set watch.directories in the config")
		os.Exit(1)
	}

	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := startWatcher(ctx, dirs, cfg.Watch.Extensions, components.Orchestrator, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	logger.Info("watching for transcript files",
		zap.String("config_path", resolvedConfigPath),
		zap.Strings("directories", w.Directories()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	w.Stop()
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: erabu query [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "Question is all remaining arguments joined by spaces. Multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Modes:
  vector    dense embedding similarity only
  keyword   BM25 lexical relevance only
  hybrid    both, fused with reciprocal rank fusion (default)

Examples:
  erabu query how does garbage collection work
  erabu query "garbage collection"                # same as above
  erabu query --mode keyword sqlite locking
  erabu query --mode vector --top-k 10 memory model
  erabu query --output json concurrency           # parseable output
`)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "erabu query \"q\" -top-k 5" would
// otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery() {
	queryArgs := argsReorder(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use direct storage)")
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	mode := fs.String("mode", "hybrid", "search mode: vector, keyword, or hybrid")
	outputFormat := fs.String("output", "text", "output format: text (human-readable) or json (parseable)")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	if fs.NArg() < 1 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	question := buildQuery(fs.Args())
	if question == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: question, TopK: *topK, Mode: *mode}

	if *serverURL != "" {
		response, err := queryViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	parsedMode, err := models.ParseMode(req.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	start := time.Now()
	results, err := components.Retriever.Query(context.Background(), req.Query, req.TopK, string(parsedMode))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	response := &models.QueryResponse{
		Results:   results,
		Mode:      parsedMode,
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	}
	if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	source := fs.String("source", "", "source document name recorded on each chunk (default: file base name, or \"stdin\")")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: erabu ingest [flags] <file-or-directory|->")
		fmt.Println("  Use - to read text from stdin.")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if path == "-" {
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		name := *source
		if name == "" {
			name = "stdin"
		}
		summary, err := components.Orchestrator.Ingest(ctx, string(text), name)
		if err != nil {
			fmt.Printf("Ingestion failed: %v\n", err)
			os.Exit(1)
		}
		printSummary(summary)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Orchestrator.IngestDirectory(ctx, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	summary, err := components.Orchestrator.IngestFile(ctx, path, nil)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	printSummary(summary)
}

func printSummary(summary *models.IngestSummary) {
	fmt.Printf("chunks_processed:    %d\n", summary.ChunksProcessed)
	fmt.Printf("new_documents_added: %d\n", summary.NewDocumentsAdded)
	fmt.Printf("source_hash:         %s\n", summary.SourceHash)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats models.Stats
	if *serverURL != "" {
		res, err := statsViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		res, err := components.Retriever.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = *res
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_documents: %d   # count of stored chunks\n", stats.TotalDocuments)
		fmt.Printf("embedder_type:   %s\n", stats.EmbedderType)
		fmt.Printf("database_type:   %s\n", stats.DatabaseType)
		if stats.Dimensions > 0 {
			fmt.Printf("dimensions:      %d\n", stats.Dimensions)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statsViaHTTP(serverURL string) (*models.Stats, error) {
	resp, err := http.Get(serverURL + "/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Store        store.VectorStore
	Embedder     embedding.Embedder
	Lexical      *lexical.Index
	Retriever    *search.Retriever
	Orchestrator *ingest.Orchestrator
}

func (c *Components) Close() {
	if c.Retriever != nil {
		// Closes the lexical index and embedder too.
		_ = c.Retriever.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	vs, err := store.NewSQLiteStore(cfg.Storage.DatabasePath, cfg.Storage.VecExtensionPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if logger != nil {
		logger.Info("components initialized",
			zap.String("embedder", embedder.Type()),
			zap.String("store", vs.Type()))
	}

	lex := lexical.NewIndex(vs)
	retriever := search.NewRetriever(vs, embedder, lex, &cfg.Search, cfg.Embedding.Timeout(), logger)

	orchOpts := []ingest.Option{}
	if debug && logger != nil {
		orchOpts = append(orchOpts, ingest.WithLogger(logger))
	}
	orch, err := ingest.NewOrchestrator(vs, embedder, lex, &cfg.Ingest, orchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	return &Components{
		Store:        vs,
		Embedder:     embedder,
		Lexical:      lex,
		Retriever:    retriever,
		Orchestrator: orch,
	}, nil
}

func printUsage() {
	fmt.Println(`erabu - Hybrid retrieval over local transcripts

Usage:
  erabu serve [flags]             Start the HTTP server (and directory watcher, if configured)
  erabu watch [flags] [dir ...]   Watch directories and ingest new files, no HTTP server
  erabu query [flags] <question>  Query the corpus
  erabu ingest [flags] <path|->   Ingest a file, a directory, or stdin
  erabu stats [flags]             Show corpus and component stats
  erabu version                   Show version
  erabu help                      Show this help

Serve Flags:
  --config string    Config file path (default: /usr/local/etc/erabu/config.yaml)
  --debug            Enable debug logging (file events, query details, etc.)

Watch Flags:
  --config string    Config file path
  --debug            Enable debug logging (file events, ingestion details)

Query Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (empty = direct storage). Use when the server is running to avoid database lock conflicts.
  --top-k int        Number of results (0 = config default)
  --mode string      Search mode: vector, keyword, or hybrid (default: hybrid)
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path
  --source string    Source document name recorded on each chunk

Stats Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (empty = direct storage)
  --output string    Output format: text or json (default: text)

Examples:
  erabu serve
  erabu watch ./transcripts
  erabu query how does the scheduler work
  erabu query --mode keyword sqlite locking
  erabu query --output json "memory model"   # structured JSON for other apps
  erabu ingest transcript.txt
  erabu ingest ./transcripts
  cat notes.md | erabu ingest --source notes.md -
  erabu stats --output json`)
}
