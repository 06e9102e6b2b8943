package validation

// PatchStatusRequest is the payload for PATCH /refund-payments/:id.
type PatchStatusRequest struct {
	Status   string `json:"status" validate:"required,oneof=begin in_progress paid"`
	Comment  string `json:"comment,omitempty" validate:"max=2000"`
	Decision string `json:"decision,omitempty" validate:"omitempty,oneof=accepted rejected"`
}
