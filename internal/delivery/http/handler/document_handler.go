package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"concierge-api/internal/delivery/http/dto"
	"concierge-api/internal/domain/entity"
	"concierge-api/internal/usecase/knowledge"
)

type DocumentHandler struct {
	svc *knowledge.Service
}

func NewDocumentHandler(svc *knowledge.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload godoc
// @Summary      Upload a document
// @Description  Upload a PDF, DOCX, or image file for background processing
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        file         formData  file    true   "File to upload"
// @Param        hotel_id     formData  string  true   "Hotel ID"
// @Param        uploader_id  formData  string  false  "Uploader ID"
// @Param        title        formData  string  false  "Document title"
// @Param        description  formData  string  false  "Document description"
// @Success      201  {object}  dto.UploadDocumentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/documents/upload [post]
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "failed to get file"})
	}

	fileData, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to open file"})
	}
	defer fileData.Close()

	buf, err := io.ReadAll(fileData)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to read file"})
	}

	doc, err := h.svc.Upload(c.Context(), knowledge.UploadInput{
		HotelID:     c.FormValue("hotel_id"),
		UploaderID:  c.FormValue("uploader_id"),
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		FileName:    file.Filename,
		FileType:    file.Header.Get("Content-Type"),
		Data:        buf,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.UploadDocumentResponse{
		ID:      doc.ID,
		Title:   doc.Title,
		Status:  string(doc.Status),
		Message: "Document uploaded successfully. Processing in background.",
	})
}

// List godoc
// @Summary      List documents
// @Description  Get a hotel's documents, newest first
// @Tags         Documents
// @Produce      json
// @Param        hotel_id  query  string  true   "Hotel ID"
// @Param        page      query  int     false  "Page number" default(1)
// @Param        limit     query  int     false  "Items per page" default(10)
// @Success      200  {object}  dto.ListDocumentsResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/documents [get]
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	hotelID := c.Query("hotel_id")
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	docs, total, err := h.svc.ListDocuments(c.Context(), hotelID, page, limit)
	if err != nil {
		return respondError(c, err)
	}

	infos := make([]dto.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, toDocumentInfo(&doc))
	}

	totalPages := (total + limit - 1) / limit

	return c.Status(fiber.StatusOK).JSON(dto.ListDocumentsResponse{
		Data: infos,
		Meta: dto.PaginationMeta{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: totalPages,
		},
	})
}

// GetByID godoc
// @Summary      Get document by ID
// @Description  Get a single document's details, including processing state
// @Tags         Documents
// @Produce      json
// @Param        id        path   string  true  "Document ID"
// @Param        hotel_id  query  string  true  "Hotel ID"
// @Success      200  {object}  dto.DocumentInfo
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.svc.GetDocument(c.Context(), c.Params("id"), c.Query("hotel_id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(toDocumentInfo(doc))
}

// Delete godoc
// @Summary      Delete a document
// @Description  Delete a document and all of its chunks
// @Tags         Documents
// @Produce      json
// @Param        id        path   string  true  "Document ID"
// @Param        hotel_id  query  string  true  "Hotel ID"
// @Success      200  {object}  dto.MessageResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/documents/{id} [delete]
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	if err := h.svc.DeleteDocument(c.Context(), c.Params("id"), c.Query("hotel_id")); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.MessageResponse{Message: "Document deleted successfully"})
}

// Reprocess godoc
// @Summary      Reprocess a document
// @Description  Re-run extraction, chunking, and embedding, superseding previous chunks
// @Tags         Documents
// @Produce      json
// @Param        id        path   string  true  "Document ID"
// @Param        hotel_id  query  string  true  "Hotel ID"
// @Success      202  {object}  dto.MessageResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/reprocess [post]
func (h *DocumentHandler) Reprocess(c *fiber.Ctx) error {
	if err := h.svc.Reprocess(c.Context(), c.Params("id"), c.Query("hotel_id")); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.MessageResponse{Message: "Reprocessing started"})
}

func toDocumentInfo(doc *entity.Document) dto.DocumentInfo {
	info := dto.DocumentInfo{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		FileType:    doc.FileType,
		Status:      string(doc.Status),
		Processed:   doc.Processed,
		Degraded:    doc.Degraded,
		TotalChunks: doc.TotalChunks,
		CreatedAt:   doc.CreatedAt,
	}
	if doc.DegradedReason != nil {
		info.DegradedReason = *doc.DegradedReason
	}
	return info
}

// respondError maps domain errors onto HTTP status codes.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrDocumentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "Document not found"})
	case errors.Is(err, entity.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "Knowledge store unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: err.Error()})
	}
}
