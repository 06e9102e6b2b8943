package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/backend"
	"github.com/imrishuroy/go-refund-reconciler/internal/events"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/reconcile"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
	"github.com/imrishuroy/go-refund-reconciler/internal/transition"
	"github.com/imrishuroy/go-refund-reconciler/internal/validation"
)

const maxEventBody = 1 << 20

// Transitioner requests status changes. *transition.Controller implements it.
type Transitioner interface {
	Request(ctx context.Context, req transition.Request) error
}

// HandlerConfig groups dependencies for the refund-payments handlers.
type HandlerConfig struct {
	Engine      *reconcile.Engine
	Transitions Transitioner
	// Hub receives webhook pushes. Nil disables POST /events/refund-payments.
	Hub *events.Hub
	Log *zap.Logger
}

// RegisterRefundRoutes registers the console routes over the engine's store.
func RegisterRefundRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := logger.OrNop(cfg.Log)
	store := cfg.Engine.Store()

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"policy": store.Policy(),
			"stats":  cfg.Engine.Stats(),
		})
	})

	r.GET("/refund-payments", func(c *gin.Context) {
		switch c.DefaultQuery("view", "active") {
		case "active":
			c.JSON(http.StatusOK, store.Active())
		case "all":
			c.JSON(http.StatusOK, store.All())
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_view", "msg": "view must be active or all"})
		}
	})

	r.GET("/refund-payments/search", func(c *gin.Context) {
		q := c.Query("q")
		c.JSON(http.StatusOK, gin.H{
			"active":  reconcile.SearchActive(q),
			"results": store.Search(q),
		})
	})

	r.GET("/refund-payments/:id", func(c *gin.Context) {
		rec, ok := store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.PATCH("/refund-payments/:id", func(c *gin.Context) {
		var req validation.PatchStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		err := cfg.Transitions.Request(c.Request.Context(), transition.Request{
			ID:       c.Param("id"),
			Status:   refunds.Status(req.Status),
			Comment:  req.Comment,
			Decision: refunds.Decision(req.Decision),
		})

		var ve *transition.ValidationError
		var ne *backend.NetworkError
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id"), "status": req.Status})
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": ve.Fields})
		case errors.As(err, &ne):
			c.JSON(http.StatusBadGateway, gin.H{"error": "backend_failed", "detail": ne.Error()})
		default:
			log.Error("transition failed", zap.String("id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transition_failed"})
		}
	})

	if cfg.Hub == nil {
		return
	}
	r.POST("/events/refund-payments", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		ev, err := cfg.Hub.PublishRaw(body)
		if err != nil {
			reason := "malformed_payload"
			var me *events.MalformedPayloadError
			if errors.As(err, &me) {
				reason = me.Reason
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload", "reason": reason})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event": ev.Kind, "id": ev.Record.ID})
	})
}
