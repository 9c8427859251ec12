package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "concierge-api/docs"
	"concierge-api/internal/adapter/openai"
	"concierge-api/internal/adapter/repository/postgres"
	"concierge-api/internal/delivery/http/handler"
	"concierge-api/internal/usecase/knowledge"
	"concierge-api/pkg/config"
	"concierge-api/pkg/database"

	"github.com/gofiber/fiber/v2"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	// log
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// @title           Concierge Knowledge API
// @version         1.0
// @description     Document ingestion and semantic retrieval for hotel operations
// @host            localhost:8080
// @BasePath        /
func main() {
	cfg := config.Load()

	// connect to database
	db, err := database.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("connected to database")

	// initialize embedding client
	embedder := openai.NewEmbeddingClient(cfg.OpenAIKey, cfg.OpenAIEmbeddingModel, cfg.EmbeddingDimension)

	// initialize repository
	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)

	// initialize knowledge service and its ingestion workers
	svc := knowledge.NewService(docRepo, chunkRepo, embedder, knowledge.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		TopK:         cfg.TopKResults,
		Threshold:    cfg.SimilarityThreshold,
		QueryTimeout: cfg.QueryTimeout,
		QueueSize:    cfg.IngestQueue,
		StorageDir:   cfg.StorageDir,
	})
	svc.Start(cfg.IngestWorkers)

	// re-enqueue documents a previous run left unprocessed
	if err := svc.Recover(context.Background()); err != nil {
		log.Printf("recover unprocessed documents: %v", err)
	}

	// initialize handler
	docHandler := handler.NewDocumentHandler(svc)
	searchHandler := handler.NewSearchHandler(svc)

	// initialize fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 32 * 1024 * 1024,
	})

	// middleware for log request and response in terminal
	app.Use(logger.New())

	// Swagger route
	app.Get("/swagger/*", fiberSwagger.WrapHandler)

	// document routes
	api := app.Group("/api")
	api.Post("/documents/upload", docHandler.Upload)
	api.Get("/documents", docHandler.List)
	api.Get("/documents/:id", docHandler.GetByID)
	api.Delete("/documents/:id", docHandler.Delete)
	api.Post("/documents/:id/reprocess", docHandler.Reprocess)

	// search route
	api.Post("/search", searchHandler.Search)

	// drain ingestion workers on shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	// Start server
	log.Printf("🚀 Server starting on port %d", cfg.Port)
	log.Printf("📚 Swagger UI: http://localhost:%d/swagger/index.html", cfg.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	svc.Stop()
	log.Println("ingestion workers drained")
}
