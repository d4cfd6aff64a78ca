package handlers

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/ingestion"
	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

// Invalidator drops cached answers after a document changes; nil
// disables invalidation.
type Invalidator interface {
	InvalidateAnswerCache(ctx context.Context) error
}

type DocumentHandler struct {
	processor *ingestion.Processor
	cache     Invalidator
}

func NewDocumentHandler(processor *ingestion.Processor, cache Invalidator) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		cache:     cache,
	}
}

// UploadDocument ingests a discharge document for a patient. Multipart
// form: file + patient_id, optional document_id for re-ingestion.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	patientID := c.FormValue("patient_id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient_id is required",
		})
	}

	documentID := c.FormValue("document_id")
	if documentID == "" {
		documentID = uuid.New().String()
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A document file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	contentType := fileHeader.Header.Get("Content-Type")

	result, err := h.processor.Ingest(c.Context(), raw, patientID, documentID, contentType)
	if err != nil {
		return documentError(c, err)
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksIndexed.Add(float64(result.ChunkCount))

	if h.cache != nil {
		if err := h.cache.InvalidateAnswerCache(c.Context()); err != nil {
			logger.Warn("Failed to invalidate answer cache", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": result.DocumentID,
		"patient_id":  patientID,
		"text_length": result.TextLength,
		"chunk_count": result.ChunkCount,
		"extract":     result.Extract,
	})
}

func documentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, errs.ErrExtraction):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		logger.Error("Ingestion upstream unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Document processing is temporarily unavailable",
		})
	default:
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}
}
