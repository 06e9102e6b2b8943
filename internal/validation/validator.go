package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// New returns a configured validator with the struct-level rules for refund
// records and status transition requests registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(recordStructValidation, refunds.Record{})
	v.RegisterStructValidation(patchStatusStructValidation, PatchStatusRequest{})

	return v
}

// recordStructValidation rejects negative amounts and paid records without a decision.
func recordStructValidation(sl validatorv10.StructLevel) {
	rec := sl.Current().Interface().(refunds.Record)

	amounts := []struct {
		field string
		neg   bool
	}{
		{"subtotal", rec.Subtotal.IsNegative()},
		{"tax", rec.Tax.IsNegative()},
		{"deliveryFee", rec.DeliveryFee.IsNegative()},
		{"total", rec.Total.IsNegative()},
	}
	for _, a := range amounts {
		if a.neg {
			sl.ReportError(a.field, a.field, a.field, "non_negative", "")
		}
	}

	if rec.Status == refunds.StatusPaid && !rec.Decision.Valid() {
		sl.ReportError(rec.Decision, "decision", "Decision", "required_when_paid", "")
	}
}

// patchStatusStructValidation requires a comment and a decision together when
// moving to paid.
func patchStatusStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PatchStatusRequest)
	if req.Status != string(refunds.StatusPaid) {
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		sl.ReportError(req.Comment, "comment", "Comment", "required_when_paid", "")
	}
	if !refunds.Decision(req.Decision).Valid() {
		sl.ReportError(req.Decision, "decision", "Decision", "required_when_paid", "")
	}
}
