package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/institute-timetable/internal/dto"
	"github.com/noah-isme/institute-timetable/internal/service"
	appErrors "github.com/noah-isme/institute-timetable/pkg/errors"
	"github.com/noah-isme/institute-timetable/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]dto.TimetableView, error)
	Get(ctx context.Context, id string) (*dto.TimetableView, error)
	GetByBatch(ctx context.Context, batchID, term string) (*dto.TimetableView, error)
	Export(ctx context.Context, id, format string) (*service.ExportFile, error)
	Delete(ctx context.Context, id string) error
}

type generationRuns interface {
	Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationRun, error)
	Get(ctx context.Context, id string) (*dto.GenerationRun, error)
}

// TimetableHandler exposes generation and timetable read endpoints.
type TimetableHandler struct {
	service timetableService
	runs    generationRuns
}

// NewTimetableHandler constructs the handler. runs may be nil when async generation is off.
func NewTimetableHandler(svc *service.TimetableService, runs *service.GenerationJobService) *TimetableHandler {
	h := &TimetableHandler{service: svc}
	if runs != nil {
		h.runs = runs
	}
	return h
}

// Generate godoc
// @Summary Generate timetables for a scope
// @Description Plans every batch in scope for the term and replaces their stored timetables. Unplaceable sessions are listed under conflicts.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation scope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{
		"placed":    result.Stats.Placed,
		"conflicts": result.Stats.Conflicts,
	})
}

// GenerateAsync godoc
// @Summary Queue a generation run
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation scope"
// @Success 202 {object} response.Envelope
// @Router /timetables/generate/async [post]
func (h *TimetableHandler) GenerateAsync(c *gin.Context) {
	if h.runs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "async generation disabled"))
		return
	}
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	run, err := h.runs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// Run godoc
// @Summary Get the status of a queued generation run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) Run(c *gin.Context) {
	if h.runs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "async generation disabled"))
		return
	}
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// List godoc
// @Summary List stored timetables
// @Tags Timetables
// @Produce json
// @Param departmentId query string false "Department ID"
// @Param term query string false "odd or even"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// Get godoc
// @Summary Get a timetable with placements and conflicts
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// GetByBatch godoc
// @Summary Get the timetable of a batch
// @Tags Timetables
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param term query string false "odd or even, defaults to the current term"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/batch/{batchId} [get]
func (h *TimetableHandler) GetByBatch(c *gin.Context) {
	view, err := h.service.GetByBatch(c.Request.Context(), c.Param("batchId"), c.Query("term"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Export godoc
// @Summary Download a timetable
// @Tags Timetables
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Timetable ID"
// @Param format query string false "json, csv or pdf"
// @Success 200 {file} file
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", service.ExportFormatJSON))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// Delete godoc
// @Summary Delete a timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 204
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Register mounts the timetable routes on group.
func (h *TimetableHandler) Register(group *gin.RouterGroup) {
	timetables := group.Group("/timetables")
	timetables.POST("/generate", h.Generate)
	timetables.POST("/generate/async", h.GenerateAsync)
	timetables.GET("/runs/:id", h.Run)
	timetables.GET("", h.List)
	timetables.GET("/batch/:batchId", h.GetByBatch)
	timetables.GET("/:id", h.Get)
	timetables.GET("/:id/export", h.Export)
	timetables.DELETE("/:id", h.Delete)
}
