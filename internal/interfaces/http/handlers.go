package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/kelurahan-portal/internal/application/service"
	"github.com/garyjia/kelurahan-portal/internal/application/workflow"
	"github.com/garyjia/kelurahan-portal/internal/domain/entity"
	domainwf "github.com/garyjia/kelurahan-portal/internal/domain/workflow"
)

// UserIDHeader carries the authenticated user id set by the gateway
const UserIDHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	applications service.ApplicationService
	engine       workflow.WorkflowEngine
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(applications service.ApplicationService, engine workflow.WorkflowEngine, logger Logger) *Handlers {
	return &Handlers{
		applications: applications,
		engine:       engine,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ApplicationResponse is an application with its presentation fields
type ApplicationResponse struct {
	*entity.Application
	StatusLabel string `json:"status_label"`
	Progress    int    `json:"progress"`
}

// CreateApplicationRequest is the body of POST /api/applications
type CreateApplicationRequest struct {
	ServiceTemplateID  int64                  `json:"service_template_id" binding:"required"`
	FormData           map[string]interface{} `json:"form_data"`
	SubmittedDocuments []int64                `json:"submitted_documents"`
}

// UpdateStatusRequest is the body of POST /api/applications/:id/status
type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

// ListApplicationsRequest represents query parameters for listing applications
type ListApplicationsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func toApplicationResponse(app *entity.Application) ApplicationResponse {
	return ApplicationResponse{
		Application: app,
		StatusLabel: domainwf.StatusLabel(app.Status),
		Progress:    domainwf.StatusProgress(app.Status),
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateApplication handles POST /api/applications
func (h *Handlers) CreateApplication(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	app, err := h.applications.CreateApplication(c.Request.Context(), service.CreateApplicationInput{
		CitizenID:          userID,
		ServiceTemplateID:  req.ServiceTemplateID,
		FormData:           req.FormData,
		SubmittedDocuments: req.SubmittedDocuments,
	})
	if err != nil {
		h.fail(c, "Failed to create application", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: toApplicationResponse(app)})
}

// ListApplications handles GET /api/applications
func (h *Handlers) ListApplications(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req ListApplicationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	apps, err := h.applications.ListApplicationsForUser(c.Request.Context(), userID, req.Limit, req.Offset)
	if err != nil {
		h.fail(c, "Failed to list applications", err)
		return
	}

	items := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		items = append(items, toApplicationResponse(app))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// GetApplication handles GET /api/applications/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	id, ok := h.applicationID(c)
	if !ok {
		return
	}

	app, err := h.applications.GetApplication(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get application", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toApplicationResponse(app)})
}

// GetHistory handles GET /api/applications/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	id, ok := h.applicationID(c)
	if !ok {
		return
	}

	records, err := h.applications.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// AvailableTransitions handles GET /api/applications/:id/transitions
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	id, ok := h.applicationID(c)
	if !ok {
		return
	}

	targets, err := h.engine.AvailableTransitions(c.Request.Context(), id, userID)
	if err != nil {
		h.fail(c, "Failed to list transitions", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: targets})
}

// UpdateStatus handles POST /api/applications/:id/status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}
	id, ok := h.applicationID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	target, err := domainwf.ParseState(req.Status)
	if err != nil {
		h.fail(c, "Unknown target status", err)
		return
	}

	app, err := h.engine.UpdateApplicationStatus(c.Request.Context(), id, target, userID, req.Notes)
	if err != nil {
		h.fail(c, "Failed to update application status", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toApplicationResponse(app)})
}

// GenerateDocument handles POST /api/applications/:id/document
func (h *Handlers) GenerateDocument(c *gin.Context) {
	if _, ok := h.requireUser(c); !ok {
		return
	}
	id, ok := h.applicationID(c)
	if !ok {
		return
	}

	app, err := h.engine.GenerateApplicationDocument(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to generate document", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toApplicationResponse(app)})
}

func (h *Handlers) requireUser(c *gin.Context) (string, bool) {
	userID := c.GetHeader(UserIDHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "missing " + UserIDHeader + " header"})
		return "", false
	}
	return userID, true
}

func (h *Handlers) applicationID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid application ID", err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Error(message, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

// fail writes err with the status its kind maps to
func (h *Handlers) fail(c *gin.Context, message string, err error) {
	status, code := statusFor(err)
	h.logger.Error(message, "path", c.Request.URL.Path, "status", status, "error", err)
	c.JSON(status, Response{Success: false, Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	if errors.Is(err, service.ErrInvalidInput) {
		return http.StatusBadRequest, "INVALID_INPUT"
	}

	switch kind := domainwf.KindOf(err); kind {
	case domainwf.KindNotFound:
		return http.StatusNotFound, string(kind)
	case domainwf.KindInvalidTransition:
		return http.StatusConflict, string(kind)
	case domainwf.KindNumberingConflict, domainwf.KindStorageFailure:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
