package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/service"
	"github.com/qanoonhq/lexflow/internal/domain/entity"
	"github.com/qanoonhq/lexflow/internal/domain/workflow"
)

const (
	ctxTenantID = "tenant_id"
	ctxActor    = "actor"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	definitions service.DefinitionService
	templates   service.CaseTemplateService
	instances   service.InstanceService
	progress    service.ProgressService
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	definitions service.DefinitionService,
	templates service.CaseTemplateService,
	instances service.InstanceService,
	progress service.ProgressService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		definitions: definitions,
		templates:   templates,
		instances:   instances,
		progress:    progress,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
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

// --- definitions ---

// CreateDefinitionRequest is the payload for publishing a definition.
type CreateDefinitionRequest struct {
	Name          string         `json:"name" binding:"required"`
	NameLocalized string         `json:"name_localized"`
	Description   string         `json:"description"`
	EntityType    string         `json:"entity_type" binding:"required"`
	Steps         []*entity.Step `json:"steps" binding:"required"`
	IsActive      bool           `json:"is_active"`
}

// UpdateDefinitionRequest is the payload for patching a definition. Absent
// fields are left unchanged.
type UpdateDefinitionRequest struct {
	Name          *string        `json:"name"`
	NameLocalized *string        `json:"name_localized"`
	Description   *string        `json:"description"`
	IsActive      *bool          `json:"is_active"`
	Steps         []*entity.Step `json:"steps"`
}

// ListRequest represents pagination query parameters.
type ListRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func (r *ListRequest) normalize() {
	if r.Limit <= 0 || r.Limit > 100 {
		r.Limit = 20
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
}

// CreateDefinition handles POST /api/definitions
func (h *Handlers) CreateDefinition(c *gin.Context) {
	var req CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	def, err := h.definitions.Create(c.Request.Context(), service.CreateDefinitionInput{
		TenantID:      c.GetString(ctxTenantID),
		Name:          req.Name,
		NameLocalized: req.NameLocalized,
		Description:   req.Description,
		EntityType:    req.EntityType,
		Steps:         req.Steps,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

// ListDefinitions handles GET /api/definitions
func (h *Handlers) ListDefinitions(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.normalize()

	defs, err := h.definitions.List(c.Request.Context(), c.GetString(ctxTenantID), req.Limit, req.Offset)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetDefinition handles GET /api/definitions/:id
func (h *Handlers) GetDefinition(c *gin.Context) {
	def, err := h.definitions.Get(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateDefinition handles PATCH /api/definitions/:id
func (h *Handlers) UpdateDefinition(c *gin.Context) {
	var req UpdateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	def, err := h.definitions.Update(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), service.DefinitionPatch{
		Name:          req.Name,
		NameLocalized: req.NameLocalized,
		Description:   req.Description,
		IsActive:      req.IsActive,
		Steps:         req.Steps,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// DeleteDefinition handles DELETE /api/definitions/:id
func (h *Handlers) DeleteDefinition(c *gin.Context) {
	if err := h.definitions.Delete(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id")); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// --- case templates ---

// CreateCaseTemplateRequest is the payload for publishing a case template.
type CreateCaseTemplateRequest struct {
	Name          string              `json:"name" binding:"required"`
	NameLocalized string              `json:"name_localized"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	Mode          string              `json:"mode"`
	Stages        []*entity.Stage     `json:"stages" binding:"required"`
	Transitions   []entity.Transition `json:"transitions"`
	IsActive      bool                `json:"is_active"`
}

// UpdateCaseTemplateRequest is the payload for patching a case template.
type UpdateCaseTemplateRequest struct {
	Name          *string             `json:"name"`
	NameLocalized *string             `json:"name_localized"`
	Description   *string             `json:"description"`
	Category      *string             `json:"category"`
	IsActive      *bool               `json:"is_active"`
	Stages        []*entity.Stage     `json:"stages"`
	Transitions   []entity.Transition `json:"transitions"`
}

// CreateCaseTemplate handles POST /api/case-templates
func (h *Handlers) CreateCaseTemplate(c *gin.Context) {
	var req CreateCaseTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	tmpl, err := h.templates.Create(c.Request.Context(), service.CreateCaseTemplateInput{
		TenantID:      c.GetString(ctxTenantID),
		Name:          req.Name,
		NameLocalized: req.NameLocalized,
		Description:   req.Description,
		Category:      req.Category,
		Mode:          entity.TransitionMode(req.Mode),
		Stages:        req.Stages,
		Transitions:   req.Transitions,
		IsActive:      req.IsActive,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: tmpl})
}

// ListCaseTemplates handles GET /api/case-templates
func (h *Handlers) ListCaseTemplates(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.normalize()

	tmpls, err := h.templates.List(c.Request.Context(), c.GetString(ctxTenantID), req.Limit, req.Offset)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpls})
}

// GetCaseTemplate handles GET /api/case-templates/:id
func (h *Handlers) GetCaseTemplate(c *gin.Context) {
	tmpl, err := h.templates.Get(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// UpdateCaseTemplate handles PATCH /api/case-templates/:id
func (h *Handlers) UpdateCaseTemplate(c *gin.Context) {
	var req UpdateCaseTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	tmpl, err := h.templates.Update(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), service.CaseTemplatePatch{
		Name:          req.Name,
		NameLocalized: req.NameLocalized,
		Description:   req.Description,
		Category:      req.Category,
		IsActive:      req.IsActive,
		Stages:        req.Stages,
		Transitions:   req.Transitions,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// DeleteCaseTemplate handles DELETE /api/case-templates/:id
func (h *Handlers) DeleteCaseTemplate(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id")); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// --- instances ---

// StartInstanceRequest is the payload for starting a workflow instance.
type StartInstanceRequest struct {
	DefinitionID string                 `json:"definition_id" binding:"required"`
	EntityType   string                 `json:"entity_type" binding:"required"`
	EntityID     string                 `json:"entity_id" binding:"required"`
	Variables    map[string]interface{} `json:"variables"`
}

// AdvanceInstanceRequest is the payload for advancing an instance one step.
type AdvanceInstanceRequest struct {
	Result map[string]interface{} `json:"result"`
}

// ReasonRequest carries the reason for a cancel or fail.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ListInstancesRequest represents query parameters for listing instances by
// bound entity.
type ListInstancesRequest struct {
	EntityType string `form:"entity_type" binding:"required"`
	EntityID   string `form:"entity_id" binding:"required"`
}

// StartInstance handles POST /api/instances
func (h *Handlers) StartInstance(c *gin.Context) {
	var req StartInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	inst, err := h.instances.Start(c.Request.Context(), service.StartInstanceInput{
		TenantID:     c.GetString(ctxTenantID),
		DefinitionID: req.DefinitionID,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Variables:    req.Variables,
		Actor:        c.GetString(ctxActor),
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// ListInstances handles GET /api/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	insts, err := h.instances.ListByEntity(c.Request.Context(), c.GetString(ctxTenantID), req.EntityType, req.EntityID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: insts})
}

// GetInstance handles GET /api/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	inst, err := h.instances.Get(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// ActivateInstance handles POST /api/instances/:id/activate
func (h *Handlers) ActivateInstance(c *gin.Context) {
	inst, err := h.instances.Activate(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), c.GetString(ctxActor))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// AdvanceInstance handles POST /api/instances/:id/advance
func (h *Handlers) AdvanceInstance(c *gin.Context) {
	var req AdvanceInstanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	inst, err := h.instances.AdvanceStep(c.Request.Context(), service.AdvanceStepInput{
		TenantID:   c.GetString(ctxTenantID),
		InstanceID: c.Param("id"),
		Result:     req.Result,
		Actor:      c.GetString(ctxActor),
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// PauseInstance handles POST /api/instances/:id/pause
func (h *Handlers) PauseInstance(c *gin.Context) {
	inst, err := h.instances.Pause(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), c.GetString(ctxActor))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// ResumeInstance handles POST /api/instances/:id/resume
func (h *Handlers) ResumeInstance(c *gin.Context) {
	inst, err := h.instances.Resume(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), c.GetString(ctxActor))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// CancelInstance handles POST /api/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	var req ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	inst, err := h.instances.Cancel(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), req.Reason, c.GetString(ctxActor))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// FailInstance handles POST /api/instances/:id/fail
func (h *Handlers) FailInstance(c *gin.Context) {
	var req ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	inst, err := h.instances.Fail(c.Request.Context(), c.GetString(ctxTenantID), c.Param("id"), req.Reason, c.GetString(ctxActor))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// --- case progress ---

// InitializeCaseRequest is the payload for binding a case to a template.
type InitializeCaseRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// MoveToStageRequest is the payload for a stage move.
type MoveToStageRequest struct {
	TargetStageID string `json:"target_stage_id" binding:"required"`
	Notes         string `json:"notes"`
}

// CompleteRequirementRequest is the payload for completing a stage
// requirement.
type CompleteRequirementRequest struct {
	StageID       string            `json:"stage_id" binding:"required"`
	RequirementID string            `json:"requirement_id" binding:"required"`
	Metadata      map[string]string `json:"metadata"`
}

// InitializeCase handles POST /api/cases/:caseId/progress
func (h *Handlers) InitializeCase(c *gin.Context) {
	var req InitializeCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.progress.InitializeForCase(c.Request.Context(), service.InitializeCaseInput{
		TenantID:   c.GetString(ctxTenantID),
		CaseID:     c.Param("caseId"),
		TemplateID: req.TemplateID,
		Actor:      c.GetString(ctxActor),
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: p})
}

// GetCaseProgress handles GET /api/cases/:caseId/progress
func (h *Handlers) GetCaseProgress(c *gin.Context) {
	p, err := h.progress.Get(c.Request.Context(), c.GetString(ctxTenantID), c.Param("caseId"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: p})
}

// MoveToStage handles POST /api/cases/:caseId/progress/move
func (h *Handlers) MoveToStage(c *gin.Context) {
	var req MoveToStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.progress.MoveToStage(c.Request.Context(), service.MoveToStageInput{
		TenantID:      c.GetString(ctxTenantID),
		CaseID:        c.Param("caseId"),
		TargetStageID: req.TargetStageID,
		Actor:         c.GetString(ctxActor),
		Notes:         req.Notes,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: p})
}

// CompleteRequirement handles POST /api/cases/:caseId/progress/requirements
func (h *Handlers) CompleteRequirement(c *gin.Context) {
	var req CompleteRequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	p, err := h.progress.CompleteRequirement(c.Request.Context(), service.CompleteRequirementInput{
		TenantID:      c.GetString(ctxTenantID),
		CaseID:        c.Param("caseId"),
		StageID:       req.StageID,
		RequirementID: req.RequirementID,
		Actor:         c.GetString(ctxActor),
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: p})
}

// --- error mapping ---

func (h *Handlers) badRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request payload", zap.Error(err))
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   "invalid request payload",
	})
}

// serviceError translates engine error kinds into HTTP statuses. Anything
// without a kind is an internal error and its detail stays out of the body.
func (h *Handlers) serviceError(c *gin.Context, err error) {
	kind := workflow.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case workflow.KindNotFound:
		status = http.StatusNotFound
	case workflow.KindValidation, workflow.KindCycle:
		status = http.StatusBadRequest
	case workflow.KindConflict, workflow.KindInvalidState, workflow.KindInvalidTransition:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	var engineErr *workflow.Error
	message := err.Error()
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}
	c.JSON(status, Response{
		Success:   false,
		Error:     message,
		ErrorKind: string(kind),
	})
}
