package httpapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/jinford/prep-scout/pkg/models"
)

// ResearchService はHTTP層から見たリサーチジョブの操作です
type ResearchService interface {
	StartSearch(ctx context.Context, userID uuid.UUID, subject models.Subject) (*models.Search, error)
	GetProgress(ctx context.Context, searchID uuid.UUID) (search *models.Search, isStalled bool, canRetry bool, err error)
	Run(ctx context.Context, search *models.Search) error
}

// BundleReader は成果物バンドルの読み取りポートです
type BundleReader interface {
	GetBySearchID(ctx context.Context, searchID uuid.UUID) (*models.PrepBundle, error)
}

// Server はリサーチジョブのHTTP APIサーバです
// ジョブの起動は非同期で、レスポンスは即座にジョブIDを返します
type Server struct {
	app     *fiber.App
	service ResearchService
	bundles BundleReader
	logger  *slog.Logger
}

// NewServer は新しいServerを作成し、ルーティングを設定します
func NewServer(service ResearchService, bundles BundleReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "prep-scout",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{
		app:     app,
		service: service,
		bundles: bundles,
		logger:  logger,
	}
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api/v1")
	api.Post("/searches", s.handleStartSearch)
	api.Get("/searches/:id/progress", s.handleGetProgress)
	api.Get("/searches/:id/bundle", s.handleGetBundle)
}

// Listen はHTTPサーバを起動します
func (s *Server) Listen(port int) error {
	s.logger.Info("http server listening", "port", port)
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown はHTTPサーバを停止します
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App はテスト用にfiberアプリを返します
func (s *Server) App() *fiber.App {
	return s.app
}
