package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jinford/prep-scout/internal/core/research"
	"github.com/jinford/prep-scout/pkg/models"
)

// startSearchRequest はジョブ起動リクエストのボディです
type startSearchRequest struct {
	UserID  string `json:"userID"`
	Company string `json:"company"`
	Role    string `json:"role"`
	Region  string `json:"region"`
}

// progressResponse は進捗ポーリングのレスポンスです
type progressResponse struct {
	SearchID   string  `json:"searchID"`
	Status     string  `json:"status"`
	Step       string  `json:"step"`
	Percentage int     `json:"percentage"`
	Error      *string `json:"error,omitempty"`
	IsStalled  bool    `json:"isStalled"`
	CanRetry   bool    `json:"canRetry"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStartSearch はリサーチジョブを起動します
// ジョブはバックグラウンドで実行され、202とジョブIDを即座に返します
func (s *Server) handleStartSearch(c *fiber.Ctx) error {
	var req startSearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Company == "" || req.Role == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "company and role are required"})
	}

	userID := uuid.Nil
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid userID"})
		}
		userID = parsed
	}

	search, err := s.service.StartSearch(c.Context(), userID, models.Subject{
		Company: req.Company,
		Role:    req.Role,
		Region:  req.Region,
	})
	if err != nil {
		s.logger.Error("failed to start search", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start search"})
	}

	// リクエストのコンテキストとは切り離してジョブを駆動する
	go func() {
		if err := s.service.Run(context.Background(), search); err != nil {
			s.logger.Error("research run failed", "searchID", search.ID, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"searchID": search.ID.String(),
		"status":   string(search.Status),
	})
}

// handleGetProgress は進捗ポーリングのエンドポイントです
func (s *Server) handleGetProgress(c *fiber.Ctx) error {
	searchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid search id"})
	}

	search, isStalled, canRetry, err := s.service.GetProgress(c.Context(), searchID)
	if err != nil {
		if errors.Is(err, research.ErrSearchNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "search not found"})
		}
		s.logger.Error("failed to get progress", "searchID", searchID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get progress"})
	}

	return c.JSON(progressResponse{
		SearchID:   search.ID.String(),
		Status:     string(search.Status),
		Step:       search.ProgressStep,
		Percentage: search.ProgressPercentage,
		Error:      search.ErrorMessage,
		IsStalled:  isStalled,
		CanRetry:   canRetry,
	})
}

// handleGetBundle は完了したジョブの成果物バンドルを返します
func (s *Server) handleGetBundle(c *fiber.Ctx) error {
	searchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid search id"})
	}

	bundle, err := s.bundles.GetBySearchID(c.Context(), searchID)
	if err != nil {
		if errors.Is(err, research.ErrSearchNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bundle not found"})
		}
		s.logger.Error("failed to get bundle", "searchID", searchID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get bundle"})
	}

	return c.JSON(bundle)
}
