package api

import (
	"context"
	"net/http"
	"time"

	"clinic-service/internal/auth"
	"clinic-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the operations exposed over HTTP
type Services struct {
	Catalog        *service.CatalogService
	Examinations   *service.ExaminationService
	Prescriptions  *service.PrescriptionService
	Dispensing     *service.DispensingService
	Payments       *service.PaymentService
	PaymentMethods *service.PaymentMethodService
}

// Handler contains HTTP handlers
type Handler struct {
	svc      Services
	verifier *auth.Verifier
	ready    map[string]Pinger
}

// NewHandler creates a new HTTP handler. ready names the dependencies /ready pings.
func NewHandler(svc Services, verifier *auth.Verifier, ready map[string]Pinger) *Handler {
	return &Handler{
		svc:      svc,
		verifier: verifier,
		ready:    ready,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(h.verifier))
	{
		v1.POST("/examinations", h.createExamination)
		v1.GET("/examinations/:id", h.getExamination)
		v1.POST("/examinations/:id/cancel", h.cancelExamination)
		v1.DELETE("/examinations/:id", h.deleteExamination)
		v1.POST("/examinations/:id/dispense", h.dispense)

		v1.GET("/examinations/:id/prescriptions", h.listPrescriptionItems)
		v1.POST("/examinations/:id/prescriptions", h.createPrescriptionItem)
		v1.POST("/examinations/:id/prescriptions/bulk", h.bulkCreatePrescriptionItems)
		v1.PUT("/examinations/:id/prescriptions/:itemId", h.updatePrescriptionItem)
		v1.DELETE("/examinations/:id/prescriptions/:itemId", h.deletePrescriptionItem)
		v1.GET("/examinations/:id/payments", h.listExaminationPayments)

		v1.GET("/prescriptions/pending", h.pendingPrescriptions)
		v1.GET("/prescriptions/unpaid", h.unpaidPrescriptions)

		v1.POST("/payments", h.createPayment)
		v1.GET("/payments/:id", h.getPayment)
		v1.PUT("/payments/:id", h.updatePayment)

		v1.GET("/medications", h.listMedications)
		v1.POST("/medications", h.createMedication)
		v1.GET("/medications/:id", h.getMedication)
		v1.PUT("/medications/:id", h.updateMedication)
		v1.DELETE("/medications/:id", h.deleteMedication)
		v1.POST("/medications/:id/restock", h.restockMedication)
		v1.POST("/medications/:id/decrement", h.decrementMedication)

		v1.GET("/payment-methods", h.listPaymentMethods)
		v1.POST("/payment-methods", h.createPaymentMethod)
		v1.GET("/payment-methods/:id", h.getPaymentMethod)
		v1.PUT("/payment-methods/:id", h.updatePaymentMethod)
		v1.DELETE("/payment-methods/:id", h.deletePaymentMethod)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for name, p := range h.ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
