package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/checkstand/checkstand/internal/llm"
	"github.com/checkstand/checkstand/internal/ocr"
	"github.com/checkstand/checkstand/internal/processing"
	"github.com/checkstand/checkstand/internal/receipt"
	"github.com/checkstand/checkstand/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("checkstand")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "checkstand.db", "Ledger database file path")
		capturePath = fs.StringLong("captures", "./captures", "Directory for original capture images")
		engineType  = fs.StringLong("engine", "llama", "Inference engine: 'llama' (local) or 'gemini' (hosted)")
		modelPath   = fs.StringLong("model-path", "", "Path to the local model artifact (llama engine)")
		llamaURL    = fs.StringLong("llama-url", "http://localhost:11434", "Local inference server base URL")
		llamaModel  = fs.StringLong("llama-model", "gemma3n:e4b", "Local model name")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ocrURL      = fs.StringLong("ocr-url", "http://localhost:11434", "Vision model server base URL for text extraction")
		ocrModel    = fs.StringLong("ocr-model", "llava", "Vision model name for text extraction")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CHECKSTAND"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("initializing ledger database...", "path", *dbPath)
	store, err := receipt.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	captures, err := receipt.NewLocalCaptureStorage(*capturePath)
	if err != nil {
		slog.Error("failed to initialize capture storage", "error", err)
		os.Exit(1)
	}

	status := llm.NewStatusTracker()

	var factory llm.Factory
	switch *engineType {
	case "llama":
		slog.Info("using local inference server", "url", *llamaURL, "model", *llamaModel)
		factory = func(ctx context.Context) (llm.Engine, error) {
			return llm.NewLlamaServer(*llamaURL, *llamaModel), nil
		}
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("using hosted gemini engine", "model", *geminiModel)
		factory = func(ctx context.Context) (llm.Engine, error) {
			return llm.NewGemini(ctx, apiKey, *geminiModel)
		}
	default:
		slog.Error("invalid engine type", "type", *engineType, "valid", "llama or gemini")
		os.Exit(1)
	}

	session := llm.NewSessionManager(*modelPath, factory, status)
	defer session.Cleanup()

	// Load in the background; the status endpoint reports progress
	// and the queue surfaces "model not loaded" failures through the
	// normal retry path until the load completes.
	go func() {
		if !session.Initialize(context.Background()) {
			slog.Error("model initialization failed", "status", status.Status().Message)
		}
	}()

	gateway := ocr.NewVisionClient(*ocrURL, *ocrModel)
	processor := processing.NewProcessor(gateway, session)
	queue := processing.NewQueue(processor, store)

	srv := server.NewServer(queue, store, session, status, captures, server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down...")
}
