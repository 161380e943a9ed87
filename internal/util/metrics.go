package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispensesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prescription_dispenses_total",
		Help: "Total number of prescriptions dispensed",
	})

	DispenseFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prescription_dispense_failed_total",
		Help: "Total number of failed dispense attempts",
	}, []string{"reason"})

	DispenseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prescription_dispense_latency_seconds",
		Help:    "Latency of the dispense unit of work",
		Buckets: prometheus.DefBuckets,
	})

	UnitsDispensedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medication_units_dispensed_total",
		Help: "Total medication units consumed by dispensing",
	}, []string{"medication_id"})

	PaymentsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_recorded_total",
		Help: "Total number of payments recorded by settlement status",
	}, []string{"status"})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of rejected payment operations",
	}, []string{"reason"})

	MedicationStockLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "medication_stock_level",
		Help: "Last observed stock level per medication",
	}, []string{"medication_id"})

	LowStockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medication_low_stock_alerts_total",
		Help: "Total number of low stock alerts raised",
	}, []string{"medication_id"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
