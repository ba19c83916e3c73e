package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/medoffice-workflow/internal/application/workflow"
	"github.com/garyjia/medoffice-workflow/internal/domain/entity"
	"github.com/garyjia/medoffice-workflow/pkg/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateStatusRequest is the body of POST /api/statuses
type CreateStatusRequest struct {
	ID          string `json:"id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CreateRuleRequest is the body of POST /api/rules
type CreateRuleRequest struct {
	FromStatus       string `json:"from_status" binding:"required"`
	ToStatus         string `json:"to_status" binding:"required"`
	Name             string `json:"name"`
	RequiresApproval bool   `json:"requires_approval"`
}

// TransitionRequest is the body of POST /api/patients/:id/transitions
type TransitionRequest struct {
	ToStatus        string     `json:"to_status" binding:"required"`
	Actor           string     `json:"actor" binding:"required"`
	Notes           string     `json:"notes"`
	Approved        bool       `json:"approved"`
	AssignedTo      *string    `json:"assigned_to"`
	IdempotencyKey  string     `json:"idempotency_key"`
	RequestedAt     *time.Time `json:"requested_at"`
	DefaultStatusID string     `json:"default_status"`
}

// SummaryRequest is the body of POST /api/patients/:id/summary
type SummaryRequest struct {
	Type           string `json:"type"`
	IncludeHistory *bool  `json:"include_history"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ListStatuses handles GET /api/statuses
func (h *Handlers) ListStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.services.Catalog.ListStatuses(),
	})
}

// GetStatus handles GET /api/statuses/:id
func (h *Handlers) GetStatus(c *gin.Context) {
	status, err := h.services.Catalog.GetStatus(c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    status,
	})
}

// CreateStatus handles POST /api/statuses
func (h *Handlers) CreateStatus(c *gin.Context) {
	var req CreateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid status: "+err.Error())
		return
	}
	status, err := h.services.Catalog.AddStatus(c.Request.Context(), entity.Status{
		ID:          req.ID,
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(c, "Failed to add status", err, "status_id", req.ID)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    status,
	})
}

// DeleteStatus handles DELETE /api/statuses/:id
func (h *Handlers) DeleteStatus(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Catalog.RemoveStatus(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to remove status", err, "status_id", id)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.services.Catalog.ListRules(),
	})
}

// CreateRule handles POST /api/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid rule: "+err.Error())
		return
	}

	rule, err := h.services.Catalog.AddRule(c.Request.Context(), entity.TransitionRule{
		FromStatus:       req.FromStatus,
		ToStatus:         req.ToStatus,
		Name:             req.Name,
		RequiresApproval: req.RequiresApproval,
	})
	if err != nil {
		h.respondError(c, "Failed to add rule", err, "from", req.FromStatus, "to", req.ToStatus)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    rule,
	})
}

// DeleteRule handles DELETE /api/rules?from=&to=
func (h *Handlers) DeleteRule(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		badRequest(c, "from and to are required")
		return
	}

	if err := h.services.Catalog.RemoveRule(c.Request.Context(), from, to); err != nil {
		h.respondError(c, "Failed to remove rule", err, "from", from, "to", to)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetWorkflow handles GET /api/patients/:id/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	patientID := c.Param("id")
	state, err := h.services.Engine.GetState(c.Request.Context(), patientID, c.Query("default_status"))
	if err != nil {
		h.respondError(c, "Failed to get workflow state", err, "patient_id", patientID)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    state,
	})
}

// RequestTransition handles POST /api/patients/:id/transitions
func (h *Handlers) RequestTransition(c *gin.Context) {
	patientID := c.Param("id")

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid transition request: "+err.Error())
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	treq := workflow.TransitionRequest{
		PatientID:       patientID,
		ToStatusID:      req.ToStatus,
		Actor:           req.Actor,
		Notes:           utils.SanitizeString(req.Notes),
		Approved:        req.Approved,
		AssignedTo:      req.AssignedTo,
		IdempotencyKey:  key,
		DefaultStatusID: req.DefaultStatusID,
	}
	if req.RequestedAt != nil {
		treq.RequestedAt = *req.RequestedAt
	}

	result, err := h.services.Engine.RequestTransition(c.Request.Context(), treq)
	if err != nil {
		h.respondError(c, "Transition failed", err, "patient_id", patientID, "to", req.ToStatus)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// AvailableTransitions handles GET /api/patients/:id/transitions/available
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	patientID := c.Param("id")
	moves, err := h.services.Engine.AvailableTransitions(c.Request.Context(), patientID, c.Query("default_status"))
	if err != nil {
		h.respondError(c, "Failed to list available transitions", err, "patient_id", patientID)
		return
	}
	if moves == nil {
		moves = []workflow.AvailableTransition{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    moves,
	})
}

// History handles GET /api/patients/:id/history
func (h *Handlers) History(c *gin.Context) {
	patientID := c.Param("id")
	entries, err := h.services.Engine.History(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, "Failed to load history", err, "patient_id", patientID)
		return
	}
	if entries == nil {
		entries = []entity.HistoryEntry{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    entries,
	})
}

// GenerateSummary handles POST /api/patients/:id/summary
func (h *Handlers) GenerateSummary(c *gin.Context) {
	patientID := c.Param("id")

	var req SummaryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid summary request: "+err.Error())
			return
		}
	}

	opts := entity.SummaryOptions{
		Type:           entity.SummaryType(req.Type),
		IncludeHistory: req.IncludeHistory == nil || *req.IncludeHistory,
	}

	summary, err := h.services.Summary.Generate(c.Request.Context(), patientID, opts)
	if err != nil {
		h.respondError(c, "Summary generation failed", err, "patient_id", patientID)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    summary,
	})
}

// Export handles GET /api/export
func (h *Handlers) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.services.Export.Export(c.Request.Context(), &buf); err != nil {
		h.respondError(c, "Export failed", err)
		return
	}

	filename := "workflow-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// Import handles POST /api/import (multipart field "file")
func (h *Handlers) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing workbook in form field \"file\"")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "cannot read uploaded workbook")
		return
	}
	defer file.Close()

	result, err := h.services.Export.ImportCatalog(c.Request.Context(), file)
	if err != nil {
		h.respondError(c, "Import failed", err, "file", fileHeader.Filename)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// statusName resolves a status id to its display name
func (h *Handlers) statusName(id string) string {
	if h.services.Catalog == nil {
		return id
	}
	status, err := h.services.Catalog.GetStatus(id)
	if err != nil || status.Name == "" {
		return id
	}
	return status.Name
}
