package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

type handlers struct {
	svc    Service
	logger *slog.Logger
}

type discoverRequest struct {
	SourceLaws []types.LawID `json:"source_laws" binding:"required,min=1,dive,lawid"`
}

type entryIDsRequest struct {
	EntryIDs []string `json:"entry_ids" binding:"required,min=1,dive,required"`
}

type batchRequest struct {
	Operator   string   `json:"operator" binding:"required,oneof=reparse enacting_link import"`
	EntryIDs   []string `json:"entry_ids" binding:"omitempty,dive,required"`
	SessionID  string   `json:"session_id"`
	AllPending bool     `json:"all_pending"`
	Continue   bool     `json:"continue"`
}

type listQuery struct {
	SessionID  string `form:"session_id"`
	Status     string `form:"status" binding:"omitempty,oneof=pending processed deferred skipped"`
	UpdateType string `form:"update_type" binding:"omitempty,oneof=reparse enacting_link"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) list(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, err)
		return
	}
	listing, err := h.svc.List(c.Request.Context(), types.Filter{
		SessionID:  q.SessionID,
		Status:     types.Status(q.Status),
		UpdateType: types.UpdateType(q.UpdateType),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *handlers) sessions(c *gin.Context) {
	sessions, err := h.svc.Sessions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []types.SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *handlers) discover(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	report, err := h.svc.StartDiscovery(c.Request.Context(), c.Param("sessionId"), req.SourceLaws)
	if err != nil {
		h.failWithReport(c, err, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) continueDiscovery(c *gin.Context) {
	var req entryIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	report, err := h.svc.ContinueDiscovery(c.Request.Context(), c.Param("sessionId"), req.EntryIDs)
	if err != nil {
		h.failWithReport(c, err, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) batch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	result, err := h.svc.RunBatch(c.Request.Context(), cascade.BatchRequest{
		Operator:   types.OperatorKind(req.Operator),
		EntryIDs:   req.EntryIDs,
		SessionID:  req.SessionID,
		AllPending: req.AllPending,
		Continue:   req.Continue,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) release(c *gin.Context) {
	h.transition(c, h.svc.ReleaseDeferred, "released")
}

func (h *handlers) skip(c *gin.Context) {
	h.transition(c, h.svc.SkipEntries, "skipped")
}

func (h *handlers) transition(c *gin.Context, fn func(ctx context.Context, ids []string) (int, error), key string) {
	var req entryIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	n, err := fn(c.Request.Context(), req.EntryIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{key: n})
}

func (h *handlers) deleteEntry(c *gin.Context) {
	deleted, err := h.svc.DeleteEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *handlers) clearSession(c *gin.Context) {
	n, err := h.svc.ClearSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

func (h *handlers) clearProcessed(c *gin.Context) {
	n, err := h.svc.ClearProcessed(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": n})
}

func (h *handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
}

// fail maps err to a status code and writes the error body.
func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var verr *types.ValidationError
	if errors.As(err, &verr) && len(verr.EntryIDs) > 0 {
		body["entry_ids"] = verr.EntryIDs
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

// failWithReport also returns the layers a discovery run completed before
// failing.
func (h *handlers) failWithReport(c *gin.Context, err error, report *types.DiscoveryReport) {
	if report == nil || len(report.Layers) == 0 {
		h.fail(c, err)
		return
	}
	status := statusFor(err)
	h.logger.Error("discovery failed", "session_id", report.SessionID, "layers", len(report.Layers), "error", err)
	c.JSON(status, gin.H{"error": err.Error(), "report": report})
}

func statusFor(err error) int {
	switch {
	case types.IsValidation(err),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrInvalidSession),
		errors.Is(err, types.ErrInvalidLawID),
		errors.Is(err, types.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidUpdateType),
		errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, types.ErrUnknownOperator):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNoCollaborator):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
