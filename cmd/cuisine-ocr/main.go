package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/engine"
	"github.com/zombor/cuisine-ocr/internal/extract"
	"github.com/zombor/cuisine-ocr/internal/record"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("cuisine-ocr")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "cuisine-ocr.db", "Database file path")
		storagePath = fs.StringLong("storage", "./documents", "Raw text archive directory")
		catalogPath = fs.StringLong("catalog", "", "Catalog snapshot JSON file")
		rulesPath   = fs.StringLong("rules", "", "Extraction rules JSON file (overlays the French defaults)")
		docType     = fs.StringLong("type", string(engine.DocumentZReport), "Document type: z_report, facture_fournisseur or mercuriale")
		workers     = fs.IntLong("workers", 4, "Documents processed concurrently")
		timeout     = fs.DurationLong("timeout", 30*time.Second, "Per-document processing timeout")
		threshold   = fs.Float64Long("quality-threshold", -1, "Minimum segment quality score in [0,1] (negative keeps the rules value)")
		serve       = fs.BoolLong("serve", "Start the HTTP API instead of processing files")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CUISINE_OCR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	rules, err := loadRules(*rulesPath)
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}
	rules, err = applyThreshold(rules, *threshold)
	if err != nil {
		slog.Error("Invalid quality threshold", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(rules, engine.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}

	if !*serve {
		os.Exit(runBatch(eng, *catalogPath, engine.DocumentType(*docType), fs.GetArgs(), *workers, *timeout))
	}

	slog.Info("Initializing database...")
	db, err := record.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := record.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := record.NewService(db, store, eng, nil, *timeout)
	if err := initCatalog(service, db, *catalogPath); err != nil {
		slog.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}

	server := record.NewServer(service, record.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

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

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func loadRules(path string) (extract.Rules, error) {
	if path == "" {
		return extract.DefaultRules(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return extract.Rules{}, fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()
	return extract.LoadRules(f)
}

// applyThreshold overrides the rules quality threshold. A negative value
// keeps the one from the rules.
func applyThreshold(rules extract.Rules, threshold float64) (extract.Rules, error) {
	if threshold < 0 {
		return rules, nil
	}
	rules.QualityThreshold = threshold
	if err := rules.Validate(); err != nil {
		return extract.Rules{}, err
	}
	return rules, nil
}

func loadSnapshot(path string) (*catalog.Snapshot, error) {
	if path == "" {
		return catalog.NewSnapshot(nil, nil, nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return catalog.LoadSnapshot(bytes.NewReader(data))
}

// initCatalog prefers the file given on the command line and falls back to
// the last snapshot stored in the database.
func initCatalog(service *record.Service, db record.DB, path string) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading catalog: %w", err)
		}
		_, err = service.UpdateCatalog(data)
		return err
	}

	data, err := db.GetCatalog()
	if errors.Is(err, record.ErrNotFound) {
		slog.Warn("No catalog loaded; every item will need creation")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = service.UpdateCatalog(data)
	return err
}

func runBatch(eng *engine.Engine, catalogPath string, docType engine.DocumentType, files []string, workers int, timeout time.Duration) int {
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cuisine-ocr [flags] file.txt [file.txt ...]")
		return 1
	}
	if !docType.Valid() {
		slog.Error("Invalid document type", "type", docType)
		return 1
	}

	snap, err := loadSnapshot(catalogPath)
	if err != nil {
		slog.Error("Failed to load catalog", "error", err)
		return 1
	}

	docs := make([]engine.RawDocument, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("Failed to read document", "file", path, "error", err)
			return 1
		}
		docs = append(docs, engine.RawDocument{
			ID:           strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			DocumentType: docType,
			RawText:      string(data),
			PageCount:    1,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := eng.Batch(ctx, docs, snap, engine.WithWorkers(workers), engine.WithTimeout(timeout))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		slog.Error("Error encoding results", "error", err)
		return 1
	}

	for _, item := range items {
		if item.Err != nil {
			return 2
		}
	}
	return 0
}
