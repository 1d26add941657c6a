package metrics

import "github.com/prometheus/client_golang/prometheus"

// Finalization modes.
const (
	ModeSingle = "single"
	ModeBulk   = "bulk"
)

// OTP verification results.
const (
	OTPResultOK       = "ok"
	OTPResultNotFound = "not_found"
	OTPResultExpired  = "expired"
)

// PurchaseMetrics counts purchase lifecycle and OTP outcomes.
type PurchaseMetrics struct {
	created       *prometheus.CounterVec
	finalized     *prometheus.CounterVec
	bulkOutcomes  *prometheus.CounterVec
	otpIssued     *prometheus.CounterVec
	otpVerifyings *prometheus.CounterVec
}

// NewPurchaseMetrics registers the purchase metrics on reg. A nil registerer yields a no-op recorder.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	m := &PurchaseMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agaseke_purchases_created_total",
			Help: "Purchases created, by delivery method.",
		}, []string{"delivery_method"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agaseke_purchases_finalized_total",
			Help: "Purchases finalized by an agent, by mode.",
		}, []string{"mode"}),
		bulkOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agaseke_bulk_completions_total",
			Help: "Bulk completion requests, by outcome.",
		}, []string{"outcome"}),
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agaseke_otp_issued_total",
			Help: "OTP challenges issued, by purpose.",
		}, []string{"purpose"}),
		otpVerifyings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agaseke_otp_verifications_total",
			Help: "OTP verification attempts, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.created, m.finalized, m.bulkOutcomes, m.otpIssued, m.otpVerifyings)
	return m
}

func (m *PurchaseMetrics) IncCreated(deliveryMethod string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(deliveryMethod)).Inc()
}

// AddFinalized adds n finalized purchases for the given mode.
func (m *PurchaseMetrics) AddFinalized(mode string, n int) {
	if m == nil || m.finalized == nil || n <= 0 {
		return
	}
	m.finalized.WithLabelValues(normalizeLabel(mode)).Add(float64(n))
}

func (m *PurchaseMetrics) IncBulkOutcome(outcome string) {
	if m == nil || m.bulkOutcomes == nil {
		return
	}
	m.bulkOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PurchaseMetrics) IncOTPIssued(purpose string) {
	if m == nil || m.otpIssued == nil {
		return
	}
	m.otpIssued.WithLabelValues(normalizeLabel(purpose)).Inc()
}

// IncOTPVerification records a verify attempt under one of the OTPResult values.
func (m *PurchaseMetrics) IncOTPVerification(result string) {
	if m == nil || m.otpVerifyings == nil {
		return
	}
	m.otpVerifyings.WithLabelValues(normalizeLabel(result)).Inc()
}
