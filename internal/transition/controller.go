// Package transition requests workflow status changes from the backend.
// It never touches the reconciliation store: the resulting record comes
// back as an updated event.
package transition

import (
	"context"
	"fmt"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/backend"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
	"github.com/imrishuroy/go-refund-reconciler/internal/validation"
)

// Patcher sends a transition to the backend. *backend.Client implements it.
type Patcher interface {
	PatchRefundPayment(ctx context.Context, id string, payload backend.PatchPayload) error
}

// Request asks for record ID to move to Status.
type Request struct {
	ID       string
	Status   refunds.Status
	Comment  string
	Decision refunds.Decision
}

// ValidationError rejects a request before it reaches the backend.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid transition: %s", strings.Join(names, ", "))
}

// Controller validates transition requests and forwards valid ones.
type Controller struct {
	patcher  Patcher
	validate *validatorv10.Validate
	log      *zap.Logger
}

// NewController returns a Controller that sends through patcher.
func NewController(patcher Patcher, log *zap.Logger) *Controller {
	return &Controller{
		patcher:  patcher,
		validate: validation.New(),
		log:      logger.OrNop(log),
	}
}

// Request validates req and issues the PATCH. It returns *ValidationError
// without any network call when req is invalid and *backend.NetworkError
// when the backend rejects or cannot be reached.
func (c *Controller) Request(ctx context.Context, req Request) error {
	if err := c.check(req); err != nil {
		return err
	}

	payload := backend.PatchPayload{
		Status:  req.Status,
		Comment: strings.TrimSpace(req.Comment),
	}
	if req.Status == refunds.StatusPaid {
		payload.Decision = req.Decision
	}

	log := c.log.With(zap.String("id", req.ID), zap.String("status", string(req.Status)))
	if err := c.patcher.PatchRefundPayment(ctx, req.ID, payload); err != nil {
		log.Warn("transition request failed", zap.Error(err))
		return err
	}
	log.Info("transition requested")
	return nil
}

func (c *Controller) check(req Request) error {
	fields := map[string]string{}
	if strings.TrimSpace(req.ID) == "" {
		fields["id"] = "id is required"
	}
	err := c.validate.Struct(validation.PatchStatusRequest{
		Status:   string(req.Status),
		Comment:  req.Comment,
		Decision: string(req.Decision),
	})
	if err != nil {
		for k, v := range validation.ErrorsToMap(err) {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
