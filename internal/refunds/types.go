package refunds

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amounts go out as JSON numbers. Both numbers and quoted strings are
// accepted on input.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is a workflow stage of a refund payment.
type Status string

// Workflow stages, in order.
const (
	StatusBegin      Status = "begin"
	StatusInProgress Status = "in_progress"
	StatusPaid       Status = "paid"
)

// Decision is the accept/reject outcome attached once a record is paid.
type Decision string

// Decision values. DecisionNone means no decision has been recorded yet.
const (
	DecisionNone     Decision = ""
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// Record is a refund payment ("reimbursement") as served by the backend and
// carried by push events. Every payload is a full replacement of the record.
type Record struct {
	ID              string          `json:"id" dynamodbav:"id" validate:"required"`
	OrderID         string          `json:"orderId" dynamodbav:"order_id" validate:"required"`
	RefundID        string          `json:"refundId,omitempty" dynamodbav:"refund_id,omitempty"` // secondary reimbursement identifier
	Status          Status          `json:"status" dynamodbav:"status" validate:"required,oneof=begin in_progress paid"`
	Decision        Decision        `json:"decision,omitempty" dynamodbav:"decision,omitempty" validate:"omitempty,oneof=accepted rejected"`
	ClientValidated bool            `json:"clientValidated" dynamodbav:"client_validated"`
	UserName        string          `json:"userName" dynamodbav:"user_name"`
	UserEmail       string          `json:"userEmail" dynamodbav:"user_email"`
	Subtotal        decimal.Decimal `json:"subtotal" dynamodbav:"-"`
	Tax             decimal.Decimal `json:"tax" dynamodbav:"-"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee" dynamodbav:"-"`
	Total           decimal.Decimal `json:"total" dynamodbav:"-"`
	Reason          string          `json:"reason,omitempty" dynamodbav:"reason,omitempty"`
	CustomReason    string          `json:"customReason,omitempty" dynamodbav:"custom_reason,omitempty"`
	Comment         string          `json:"comment,omitempty" dynamodbav:"comment,omitempty"`
	CreatedAt       time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}
