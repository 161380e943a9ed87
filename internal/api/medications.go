package api

import (
	"context"
	"net/http"

	"clinic-service/internal/models"
	"clinic-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listMedications(c *gin.Context) {
	meds, err := h.svc.Catalog.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list medications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"medications": meds})
}

func (h *Handler) createMedication(c *gin.Context) {
	var req service.CreateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	m, err := h.svc.Catalog.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create medication")
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) getMedication(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	m, err := h.svc.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get medication")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) updateMedication(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	m, err := h.svc.Catalog.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update medication")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) deleteMedication(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Catalog.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete medication")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) restockMedication(c *gin.Context) {
	h.adjustStock(c, h.svc.Catalog.Restock)
}

func (h *Handler) decrementMedication(c *gin.Context) {
	h.adjustStock(c, h.svc.Catalog.DecrementStock)
}

type stockAdjuster func(ctx context.Context, id int64, amount int) (*models.Medication, error)

func (h *Handler) adjustStock(c *gin.Context, adjust stockAdjuster) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.StockAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	m, err := adjust(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err, "Failed to adjust stock")
		return
	}
	c.JSON(http.StatusOK, m)
}
