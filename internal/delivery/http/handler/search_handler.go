package handler

import (
	"github.com/gofiber/fiber/v2"

	"concierge-api/internal/delivery/http/dto"
	"concierge-api/internal/domain/entity"
	"concierge-api/internal/usecase/knowledge"
)

type SearchHandler struct {
	svc *knowledge.Service
}

func NewSearchHandler(svc *knowledge.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search godoc
// @Summary      Search hotel knowledge
// @Description  Semantic search over a hotel's documents with keyword fallback
// @Tags         Search
// @Accept       json
// @Produce      json
// @Param        request  body  dto.SearchRequest  true  "Search request"
// @Success      200  {object}  dto.SearchResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/search [post]
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var req dto.SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	outcome, err := h.svc.Search(c.Context(), entity.SearchParams{
		Query:       req.Query,
		HotelID:     req.HotelID,
		DocumentID:  req.DocumentID,
		DocumentIDs: req.DocumentIDs,
		Threshold:   req.MatchThreshold,
		Limit:       req.Limit,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.SearchResponse{
		Success:    outcome.Success,
		Found:      outcome.Found,
		SearchType: string(outcome.SearchType),
		Count:      outcome.Count,
		Results:    outcome.Results,
		Context:    outcome.Context,
	})
}
