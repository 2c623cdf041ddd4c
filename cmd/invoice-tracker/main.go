package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/passenger"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-tracker")
	var (
		port         = fs.IntLong("port", 5000, "HTTP server port")
		dbPath       = fs.StringLong("db", "invoice-tracker.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./invoices", "Directory where acquired invoice documents are stored")
		inboxPath    = fs.StringLong("inbox", "./inbox", "Directory holding invoice documents named <ticket number>.<ext>")
		rosterPath   = fs.StringLong("roster", "", "Passenger roster (.csv or .xlsx) imported when the database is empty")
		patternsPath = fs.StringLong("patterns", "", "JSON file overriding the extraction patterns (optional)")
		scannerType  = fs.StringLong("scanner", "local", "Text recovery: 'local', 'gemini' or 'ollama' (the latter two transcribe scans)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := passenger.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type. Text layers are always read locally;
	// a model is only consulted for scans and photos.
	var scanner scanning.Scanner
	switch *scannerType {
	case "local":
		scanner = scanning.NewLocal(nil)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		scanner = scanning.NewLocal(gemini)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		scanner = scanning.NewLocal(ollama)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "local, gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize extractor
	var overrides map[extraction.Field][]string
	if *patternsPath != "" {
		f, err := os.Open(*patternsPath)
		if err != nil {
			slog.Error("Failed to open patterns file", "path", *patternsPath, "error", err)
			os.Exit(1)
		}
		overrides, err = extraction.LoadPatterns(f)
		f.Close()
		if err != nil {
			slog.Error("Failed to load patterns", "path", *patternsPath, "error", err)
			os.Exit(1)
		}
	}
	extractor, err := extraction.NewExtractor(overrides)
	if err != nil {
		slog.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := passenger.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	source := passenger.NewDirectorySource(*inboxPath)
	passengerService := passenger.NewService(db, scanner, store, source, extractor)

	if *rosterPath != "" {
		entries, err := passenger.ReadRosterFile(*rosterPath)
		if err != nil {
			slog.Error("Failed to read roster", "path", *rosterPath, "error", err)
			os.Exit(1)
		}
		created, err := passengerService.Bootstrap(entries)
		if err != nil {
			slog.Error("Failed to import roster", "path", *rosterPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Roster loaded", "path", *rosterPath, "rows", len(entries), "created", created)
	}

	// Initialize server
	basicAuth := passenger.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := passenger.NewServer(passengerService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "inbox", *inboxPath)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
