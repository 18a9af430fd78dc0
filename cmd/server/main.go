package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mikeboe/deep-research/pkg/archive"
	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/embeddings"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
	"github.com/mikeboe/deep-research/pkg/server"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := clients.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}
	search, err := tools.NewProvider(cfg)
	if err != nil {
		slog.Error("Failed to init search provider", "error", err)
		os.Exit(1)
	}

	engine := research.NewEngine(llm, search, cfg.ResearchDefaults())
	engine.MaxResults = cfg.SearchMaxResults
	engine.Concurrency = cfg.WorkerConcurrency
	if cfg.ArchiveDir != "" {
		a, err := archive.NewFileArchive(cfg.ArchiveDir)
		if err != nil {
			slog.Error("Failed to init archive", "error", err)
			os.Exit(1)
		}
		engine.Archive = a
	}

	// Without a database the server only offers streaming research.
	var (
		db    *database.PostgresDB
		index *vectorstore.SourceIndexer
	)
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			slog.Error("Failed to initialize schema", "error", err)
			os.Exit(1)
		}

		// The job tables exist now; newIndex only adds the chunk table.
		index, err = newIndex(ctx, cfg, db)
		if err != nil {
			slog.Warn("Source indexing disabled", "error", err)
		}
	} else {
		slog.Info("DATABASE_URL not set, background jobs are disabled")
	}

	svc := server.NewService(ctx, db, engine, index)
	handler := server.NewHandler(svc)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length"},
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		slog.Info("Server starting", "port", cfg.Port, "llm", cfg.LLMProvider, "search", cfg.SearchProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	svc.Wait()
}

func newIndex(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*vectorstore.SourceIndexer, error) {
	// NewPGVectorStore validates the collection name before it is used in DDL.
	store, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.CreateEmbeddingsTable(ctx, cfg.CollectionName, embeddings.Dimension); err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, err
	}
	return vectorstore.NewSourceIndexer(store, embedder, cfg.ChunkSize, cfg.ChunkOverlap), nil
}
