package api

import (
	"errors"
	"io"
	"net/http"

	"clinic-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createExamination(c *gin.Context) {
	var req service.CreateExaminationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	e, err := h.svc.Examinations.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create examination")
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) getExamination(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	e, err := h.svc.Examinations.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get examination")
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) cancelExamination(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	// the reason is optional, so an empty body is accepted
	var req service.CancelExaminationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body", err)
		return
	}

	e, err := h.svc.Examinations.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err, "Failed to cancel examination")
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) deleteExamination(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Examinations.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete examination")
		return
	}
	c.Status(http.StatusNoContent)
}

// dispense handles the pharmacist's dispense of a prescription
func (h *Handler) dispense(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.Dispensing.Dispense(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to dispense prescription")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listPrescriptionItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	lines, err := h.svc.Prescriptions.ListByExamination(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list prescription items")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": lines})
}

func (h *Handler) createPrescriptionItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	item, err := h.svc.Prescriptions.CreateItem(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to add prescription item")
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) bulkCreatePrescriptionItems(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.BulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	items, err := h.svc.Prescriptions.BulkCreate(c.Request.Context(), id, req.Items)
	if err != nil {
		respondError(c, err, "Failed to add prescription items")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": items})
}

func (h *Handler) updatePrescriptionItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}

	var req service.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	item, err := h.svc.Prescriptions.UpdateItem(c.Request.Context(), id, itemID, &req)
	if err != nil {
		respondError(c, err, "Failed to update prescription item")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deletePrescriptionItem(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}

	if err := h.svc.Prescriptions.DeleteItem(c.Request.Context(), id, itemID); err != nil {
		respondError(c, err, "Failed to delete prescription item")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pendingPrescriptions(c *gin.Context) {
	queue, err := h.svc.Prescriptions.Pending(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list pending prescriptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"prescriptions": queue})
}

func (h *Handler) unpaidPrescriptions(c *gin.Context) {
	queue, err := h.svc.Payments.Unpaid(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list unpaid prescriptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"prescriptions": queue})
}
