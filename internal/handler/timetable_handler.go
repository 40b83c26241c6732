package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Oliskey-School/School-app--sub008/internal/dto"
	"github.com/Oliskey-School/School-app--sub008/internal/middleware"
	"github.com/Oliskey-School/School-app--sub008/internal/models"
	"github.com/Oliskey-School/School-app--sub008/internal/service"
	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
	"github.com/Oliskey-School/School-app--sub008/pkg/response"
)

type timetableManager interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GenerateSession(ctx context.Context, req dto.GenerateSessionRequest) (*dto.GenerateSessionResponse, error)
	EnqueueSession(ctx context.Context, req dto.GenerateSessionRequest, createdBy string) (*dto.TimetableJobResponse, error)
	JobStatus(ctx context.Context, id string) (*dto.TimetableJobResponse, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error)
	Publish(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, *models.Pagination, error)
	GetSlots(ctx context.Context, id string) ([]models.TimetableSlot, error)
	Export(ctx context.Context, id string) ([]byte, string, error)
	Delete(ctx context.Context, id string) error
	Validate(ctx context.Context, req dto.ValidateTimetableRequest) (*timetable.GeneratedSchedule, error)
	ListRoster(ctx context.Context) ([]models.RosterTeacher, error)
	TeacherSchedule(ctx context.Context, teacherID string) ([]models.TimetableSlot, error)
	UpsertRoster(ctx context.Context, req dto.RosterTeacherRequest) (*models.RosterTeacher, error)
	DeactivateRoster(ctx context.Context, id string) error
}

// TimetableHandler exposes timetable generation and storage endpoints.
type TimetableHandler struct {
	service timetableManager
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// RegisterRoutes mounts the timetable routes. Callers are expected to have
// authenticated the group already.
func (h *TimetableHandler) RegisterRoutes(rg *gin.RouterGroup) {
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	timetables := rg.Group("/timetables", middleware.WithResponseMeta())
	timetables.POST("/generate", admins, h.Generate)
	timetables.POST("/sessions", admins, h.GenerateSession)
	timetables.POST("/sessions/async", admins, h.EnqueueSession)
	timetables.GET("/jobs/:id", admins, h.JobStatus)
	timetables.POST("/save", admins, h.Save)
	timetables.POST("/validate", staff, h.Validate)
	timetables.GET("", staff, h.List)
	timetables.GET("/:id/slots", staff, h.Slots)
	timetables.GET("/:id/export", staff, h.Export)
	timetables.POST("/:id/publish", admins, h.Publish)
	timetables.DELETE("/:id", admins, h.Delete)

	roster := rg.Group("/timetable-teachers")
	roster.GET("", staff, h.ListRoster)
	roster.PUT("", admins, h.UpsertRoster)
	roster.DELETE("/:id", admins, h.DeactivateRoster)
	roster.GET("/:id/schedule", middleware.RequireRolesOrSelf("id", models.RoleSuperAdmin, models.RoleAdmin), h.TeacherSchedule)
}

// Generate godoc
// @Summary Generate a weekly timetable for one class
// @Description Scheduling failures are returned as data: QUOTA_OVERFLOW and INVALID_REQUEST answer 422 with the full result, INFEASIBLE and SEARCH_TIMED_OUT answer 200 with the best partial timetable.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Class to schedule"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rejection := rejectionError(result.Result); rejection != nil {
		response.ErrorWithData(c, rejection, result)
		return
	}
	middleware.SetCacheHit(c, result.Cached)
	middleware.SetMeta(c, "status", result.Result.Status)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// GenerateSession godoc
// @Summary Generate timetables for several classes sharing one teacher pool
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSessionRequest true "Classes to schedule"
// @Success 200 {object} response.Envelope
// @Router /timetables/sessions [post]
func (h *TimetableHandler) GenerateSession(c *gin.Context) {
	var req dto.GenerateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	result, err := h.service.GenerateSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// EnqueueSession godoc
// @Summary Queue a timetable session for background generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSessionRequest true "Classes to schedule"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/sessions/async [post]
func (h *TimetableHandler) EnqueueSession(c *gin.Context) {
	createdBy := actorID(c)
	if createdBy == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GenerateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	job, err := h.service.EnqueueSession(c.Request.Context(), req, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// JobStatus godoc
// @Summary Get the state of a queued timetable session
// @Tags Timetables
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) JobStatus(c *gin.Context) {
	job, err := h.service.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Save godoc
// @Summary Save a solved proposal as a new timetable version
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.SaveTimetableRequest true "Proposal to save"
// @Success 201 {object} response.Envelope
// @Router /timetables/save [post]
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	saved, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// Publish godoc
// @Summary Publish a stored timetable version
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/publish [post]
func (h *TimetableHandler) Publish(c *gin.Context) {
	record, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// List godoc
// @Summary List stored timetables
// @Tags Timetables
// @Produce json
// @Param className query string false "Class name"
// @Param status query string false "DRAFT, PUBLISHED or ARCHIVED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Slots godoc
// @Summary Get the taught periods of a stored timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/{id}/slots [get]
func (h *TimetableHandler) Slots(c *gin.Context) {
	slots, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Export godoc
// @Summary Download a stored timetable as CSV
// @Tags Timetables
// @Produce text/csv
// @Param id path string true "Timetable ID"
// @Success 200 {file} file
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	payload, filename, err := h.service.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv; charset=utf-8", payload)
}

// Delete godoc
// @Summary Delete a draft timetable
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

// Validate godoc
// @Summary Check a hand-edited timetable against the hard constraints
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.ValidateTimetableRequest true "Timetable to check"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	var req dto.ValidateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validate payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rejection := rejectionError(result); rejection != nil {
		response.ErrorWithData(c, rejection, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, gin.H{"valid": result.Solved()})
}

// ListRoster godoc
// @Summary List active roster teachers
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable-teachers [get]
func (h *TimetableHandler) ListRoster(c *gin.Context) {
	teachers, err := h.service.ListRoster(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// UpsertRoster godoc
// @Summary Create or replace a roster teacher
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.RosterTeacherRequest true "Roster teacher"
// @Success 200 {object} response.Envelope
// @Router /timetable-teachers [put]
func (h *TimetableHandler) UpsertRoster(c *gin.Context) {
	var req dto.RosterTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid roster payload"))
		return
	}
	teacher, err := h.service.UpsertRoster(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// DeactivateRoster godoc
// @Summary Deactivate a roster teacher
// @Tags Timetables
// @Param id path string true "Teacher ID"
// @Success 204
// @Router /timetable-teachers/{id} [delete]
func (h *TimetableHandler) DeactivateRoster(c *gin.Context) {
	if err := h.service.DeactivateRoster(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// TeacherSchedule godoc
// @Summary List a teacher's published lessons
// @Description Admins may read any teacher; a teacher may read their own week.
// @Tags Timetables
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable-teachers/{id}/schedule [get]
func (h *TimetableHandler) TeacherSchedule(c *gin.Context) {
	lessons, err := h.service.TeacherSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

func rejectionError(result *timetable.GeneratedSchedule) error {
	if result == nil || !result.Status.Rejected() {
		return nil
	}
	message := string(result.Status)
	if result.Failure != nil {
		message = result.Failure.Error()
	}
	return appErrors.Clone(appErrors.ErrUnprocessable, message)
}
