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

	"github.com/pantrypal/pantry-scan/internal/capture"
	"github.com/pantrypal/pantry-scan/internal/decoding"
	"github.com/pantrypal/pantry-scan/internal/pantry"
	"github.com/pantrypal/pantry-scan/internal/product"
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

	fs := ff.NewFlagSet("pantry-scan")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "pantry-scan.db", "Database file path")
		snapshotsPath = fs.StringLong("snapshots", "./snapshots", "Frame snapshot directory path")
		decoderType   = fs.StringLong("decoder", "zxing", "Decoder type: 'zxing', 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		productAPI    = fs.StringLong("product-api", "https://world.openfoodfacts.org", "Product database base URL")
		inventoryAPI  = fs.StringLong("inventory-api", "http://localhost:3000", "Inventory API base URL")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PANTRY_SCAN"),
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
	db, err := pantry.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize decoder based on type
	var decoder decoding.Decoder
	switch *decoderType {
	case "zxing":
		slog.Info("Initializing ZXing decoder...")
		decoder = decoding.NewZXing()
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
		slog.Info("Initializing Gemini decoder...", "model", *geminiModel)
		decoder, err = decoding.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama decoder...", "url", *ollamaURL, "model", *ollamaModel)
		decoder, err = decoding.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid decoder type", "type", *decoderType, "valid", "zxing, gemini or ollama")
		os.Exit(1)
	}
	defer decoder.Close()

	// Initialize product resolver with cache
	cache, err := product.NewBoltCache(db.Handle())
	if err != nil {
		slog.Error("Failed to initialize product cache", "error", err)
		os.Exit(1)
	}
	resolver := product.NewCachingResolver(product.NewOpenFoodFacts(*productAPI), cache)

	// Initialize snapshot storage
	slog.Info("Initializing snapshot storage...")
	snapshots, err := pantry.NewLocalStorage(*snapshotsPath)
	if err != nil {
		slog.Error("Failed to initialize snapshot storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	scanService := pantry.NewService(
		capture.NewManager(),
		decoder,
		resolver,
		pantry.NewDraftStore(),
		pantry.NewInventoryAPI(*inventoryAPI),
		db,
		snapshots,
	)
	defer scanService.Close()

	if err := scanService.RestoreDraft(); err != nil {
		slog.Warn("Failed to restore draft", "error", err)
	}

	// Initialize server
	basicAuth := pantry.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := pantry.NewServer(scanService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
