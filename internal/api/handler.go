package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/shuttlecrew/routeplanner/internal/audit"
	"github.com/shuttlecrew/routeplanner/internal/routing/orchestrator"
	apperrors "github.com/shuttlecrew/routeplanner/pkg/errors"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
)

// Handler serves the planning HTTP API.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	validator    *validator.Validate
	auditLogger  *audit.Logger
}

// NewHandler creates a planning Handler around the engine's Orchestrator.
// auditLogger may be nil, in which case planning requests are not
// recorded beyond the structured request log the gin middleware already
// writes.
func NewHandler(o *orchestrator.Orchestrator, auditLogger *audit.Logger) *Handler {
	return &Handler{orchestrator: o, validator: NewValidator(), auditLogger: auditLogger}
}

// SuccessResponse wraps a successful payload, matching the teacher's
// {success, data} envelope shape.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// ErrorResponse mirrors the teacher's {success, error, message} shape.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Plan godoc
// @Summary Plan vehicle routes for a batch of employees
// @Description Runs the Select->PreGate->Solve->PostGate->Guard->Polish->Commit pipeline over one facility's PICKUP or DROPOFF batch
// @Tags planning
// @Accept json
// @Produce json
// @Param request body PlanRequest true "Planning request"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/plan [post]
// @Security BearerAuth
func (h *Handler) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apperrors.NewBadRequestError("invalid request body: "+err.Error()))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		abort(c, apperrors.NewValidationError(err.Error()))
		return
	}

	if err := ValidateBounds(req); err != nil {
		abort(c, apperrors.NewValidationError(err.Error()))
		return
	}

	input := req.ToDomain()

	start := time.Now()
	output, err := h.orchestrator.Plan(c.Request.Context(), input)
	elapsed := time.Since(start)

	if h.auditLogger != nil {
		h.auditLogger.LogPlan(c.Request.Context(), input, output, err, elapsed)
	}

	if err != nil {
		abort(c, translateError(err))
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: FromDomain(output)})
}

// translateError maps engine-level failures to HTTP-boundary AppErrors.
// The only structured engine error today is roadclient.Error for the
// top-level road-service-unavailable abort; everything else surfaces as
// an internal error since the orchestrator otherwise resolves failures
// into unrouted employees rather than returning them as errors.
func translateError(err error) *apperrors.AppError {
	if rerr, ok := err.(*roadclient.Error); ok {
		switch rerr.Kind {
		case roadclient.KindUnavailable:
			return apperrors.NewRoadServiceUnavailableError(rerr.Message)
		default:
			return apperrors.NewRoadServiceTransientError(rerr.Message)
		}
	}
	return apperrors.NewInternalError(err.Error())
}

func abort(c *gin.Context, appErr *apperrors.AppError) {
	c.JSON(appErr.Status, ErrorResponse{Success: false, Error: appErr.Code, Message: appErr.Message})
	c.Abort()
}
