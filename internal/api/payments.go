package api

import (
	"net/http"

	"clinic-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createPayment records a payment; an Idempotency-Key header makes retries safe
func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.svc.Payments.Create(c.Request.Context(), &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err, "Failed to record payment")
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) getPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.Payments.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get payment")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) updatePayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	p, err := h.svc.Payments.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update payment")
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listExaminationPayments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.svc.Payments.ListByExamination(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list payments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) listPaymentMethods(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	methods, err := h.svc.PaymentMethods.List(c.Request.Context(), includeInactive)
	if err != nil {
		respondError(c, err, "Failed to list payment methods")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (h *Handler) createPaymentMethod(c *gin.Context) {
	var req service.CreatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pm, err := h.svc.PaymentMethods.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create payment method")
		return
	}
	c.JSON(http.StatusCreated, pm)
}

func (h *Handler) getPaymentMethod(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	pm, err := h.svc.PaymentMethods.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get payment method")
		return
	}
	c.JSON(http.StatusOK, pm)
}

func (h *Handler) updatePaymentMethod(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.UpdatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	pm, err := h.svc.PaymentMethods.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update payment method")
		return
	}
	c.JSON(http.StatusOK, pm)
}

// deletePaymentMethod deactivates the method and returns it
func (h *Handler) deletePaymentMethod(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	pm, err := h.svc.PaymentMethods.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to delete payment method")
		return
	}
	c.JSON(http.StatusOK, pm)
}
