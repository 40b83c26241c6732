package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oliskey-School/School-app--sub008/internal/dto"
	internalmiddleware "github.com/Oliskey-School/School-app--sub008/internal/middleware"
	"github.com/Oliskey-School/School-app--sub008/internal/models"
	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
	appErrors "github.com/Oliskey-School/School-app--sub008/pkg/errors"
)

type timetableManagerMock struct {
	generated   dto.GenerateTimetableRequest
	result      *timetable.GeneratedSchedule
	enqueueErr  error
	createdBy   string
	listQuery   dto.TimetableQuery
	deleteErr   error
	exportBytes []byte
}

func (m *timetableManagerMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	m.generated = req
	resp := &dto.GenerateTimetableResponse{Result: m.result}
	if !m.result.Status.Rejected() {
		resp.ProposalID = "proposal-1"
	}
	return resp, nil
}

func (m *timetableManagerMock) GenerateSession(ctx context.Context, req dto.GenerateSessionRequest) (*dto.GenerateSessionResponse, error) {
	return &dto.GenerateSessionResponse{SessionID: "s1", Result: &timetable.SessionResult{SessionID: "s1"}}, nil
}

func (m *timetableManagerMock) EnqueueSession(ctx context.Context, req dto.GenerateSessionRequest, createdBy string) (*dto.TimetableJobResponse, error) {
	m.createdBy = createdBy
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	return &dto.TimetableJobResponse{ID: "job-1", Status: dto.TimetableJobQueued, CreatedBy: createdBy}, nil
}

func (m *timetableManagerMock) JobStatus(ctx context.Context, id string) (*dto.TimetableJobResponse, error) {
	if id != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable job not found")
	}
	return &dto.TimetableJobResponse{ID: id, Status: dto.TimetableJobFinished}, nil
}

func (m *timetableManagerMock) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	return &dto.SaveTimetableResponse{ID: "tt-1", Version: 1, Status: "DRAFT"}, nil
}

func (m *timetableManagerMock) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	return &models.Timetable{ID: id, Status: models.TimetableStatusPublished}, nil
}

func (m *timetableManagerMock) List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, *models.Pagination, error) {
	m.listQuery = query
	return []models.Timetable{{ID: "tt-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *timetableManagerMock) GetSlots(ctx context.Context, id string) ([]models.TimetableSlot, error) {
	return []models.TimetableSlot{{TimetableID: id, Day: "Monday", Subject: "Mathematics"}}, nil
}

func (m *timetableManagerMock) Export(ctx context.Context, id string) ([]byte, string, error) {
	return m.exportBytes, "timetable-jss1-v1.csv", nil
}

func (m *timetableManagerMock) Delete(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *timetableManagerMock) Validate(ctx context.Context, req dto.ValidateTimetableRequest) (*timetable.GeneratedSchedule, error) {
	return m.result, nil
}

func (m *timetableManagerMock) ListRoster(ctx context.Context) ([]models.RosterTeacher, error) {
	return []models.RosterTeacher{{ID: "t1", Name: "Mr. Ade"}}, nil
}

func (m *timetableManagerMock) UpsertRoster(ctx context.Context, req dto.RosterTeacherRequest) (*models.RosterTeacher, error) {
	return &models.RosterTeacher{ID: "t1", Name: req.Name}, nil
}

func (m *timetableManagerMock) DeactivateRoster(ctx context.Context, id string) error {
	return nil
}

func (m *timetableManagerMock) TeacherSchedule(ctx context.Context, teacherID string) ([]models.TimetableSlot, error) {
	return []models.TimetableSlot{{ClassName: "JSS1", Day: "Monday", Subject: "Mathematics", TeacherID: teacherID}}, nil
}

func newTimetableRouter(mock *timetableManagerMock, role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if role != "" {
		router.Use(func(c *gin.Context) {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
			c.Next()
		})
	}
	handler := &TimetableHandler{service: mock}
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(router *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *appErrors.Error   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
	Meta       map[string]any     `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

const generatePayload = `{"className":"JSS1","subjects":["Mathematics"],"teachers":[{"id":"t1","name":"Mr. Ade","employmentType":"FT","subjectSpecialization":["Mathematics"]}],"periodsPerDay":2,"days":["Monday","Tuesday"]}`

func TestTimetableHandlerGenerateSolved(t *testing.T) {
	mock := &timetableManagerMock{result: &timetable.GeneratedSchedule{Status: timetable.StatusSolved, ClassName: "JSS1"}}
	router := newTimetableRouter(mock, models.RoleAdmin)

	w := doJSON(router, http.MethodPost, "/api/v1/timetables/generate", generatePayload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "JSS1", mock.generated.ClassName)
	assert.Equal(t, []string{"Monday", "Tuesday"}, mock.generated.Days)

	env := decodeEnvelope(t, w)
	assert.Nil(t, env.Error)
	assert.Equal(t, "SOLVED", env.Meta["status"])
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestTimetableHandlerGenerateRejectedReturnsResult(t *testing.T) {
	mock := &timetableManagerMock{result: &timetable.GeneratedSchedule{
		Status:  timetable.StatusQuotaOverflow,
		Failure: &timetable.Failure{Kind: timetable.StatusQuotaOverflow, Message: "quotas exceed capacity", Subjects: []string{"Mathematics"}},
	}}
	router := newTimetableRouter(mock, models.RoleAdmin)

	w := doJSON(router, http.MethodPost, "/api/v1/timetables/generate", generatePayload)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrUnprocessable.Code, env.Error.Code)
	assert.Contains(t, env.Error.Message, "Mathematics")

	var data dto.GenerateTimetableResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, timetable.StatusQuotaOverflow, data.Result.Status)
}

func TestTimetableHandlerGenerateMalformedJSON(t *testing.T) {
	router := newTimetableRouter(&timetableManagerMock{}, models.RoleAdmin)
	w := doJSON(router, http.MethodPost, "/api/v1/timetables/generate", `{"className":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerAccessControl(t *testing.T) {
	mock := &timetableManagerMock{result: &timetable.GeneratedSchedule{Status: timetable.StatusSolved}}

	w := doJSON(newTimetableRouter(mock, ""), http.MethodPost, "/api/v1/timetables/generate", generatePayload)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(newTimetableRouter(mock, models.RoleTeacher), http.MethodPost, "/api/v1/timetables/generate", generatePayload)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(newTimetableRouter(mock, models.RoleTeacher), http.MethodGet, "/api/v1/timetables", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(newTimetableRouter(mock, models.RoleStudent), http.MethodGet, "/api/v1/timetables", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTimetableHandlerEnqueueSession(t *testing.T) {
	mock := &timetableManagerMock{}
	router := newTimetableRouter(mock, models.RoleAdmin)
	payload := `{"classes":[` + generatePayload + `]}`

	w := doJSON(router, http.MethodPost, "/api/v1/timetables/sessions/async", payload)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "user-1", mock.createdBy)

	mock.enqueueErr = appErrors.Clone(appErrors.ErrQueueFull, "timetable queue is full, retry later")
	w = doJSON(router, http.MethodPost, "/api/v1/timetables/sessions/async", payload)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/timetables/jobs/job-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, http.MethodGet, "/api/v1/timetables/jobs/job-9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableHandlerListBindsQuery(t *testing.T) {
	mock := &timetableManagerMock{}
	router := newTimetableRouter(mock, models.RoleAdmin)

	w := doJSON(router, http.MethodGet, "/api/v1/timetables?className=JSS1&status=PUBLISHED&page=2&pageSize=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.TimetableQuery{ClassName: "JSS1", Status: "PUBLISHED", Page: 2, PageSize: 5}, mock.listQuery)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)

	w = doJSON(router, http.MethodGet, "/api/v1/timetables?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerExport(t *testing.T) {
	mock := &timetableManagerMock{exportBytes: []byte("Period,Monday\n0,Mathematics\n")}
	router := newTimetableRouter(mock, models.RoleTeacher)

	w := doJSON(router, http.MethodGet, "/api/v1/timetables/tt-1/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="timetable-jss1-v1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, "Period,Monday\n0,Mathematics\n", w.Body.String())
}

func TestTimetableHandlerSavePublishDelete(t *testing.T) {
	mock := &timetableManagerMock{}
	router := newTimetableRouter(mock, models.RoleSuperAdmin)

	w := doJSON(router, http.MethodPost, "/api/v1/timetables/save", `{"proposalId":"proposal-1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/timetables/tt-1/publish", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/timetables/tt-1/slots", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/timetables/tt-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	mock.deleteErr = appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	w = doJSON(router, http.MethodDelete, "/api/v1/timetables/tt-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTimetableHandlerValidate(t *testing.T) {
	mock := &timetableManagerMock{result: &timetable.GeneratedSchedule{Status: timetable.StatusInfeasible}}
	router := newTimetableRouter(mock, models.RoleTeacher)
	payload := `{"class":` + generatePayload + `,"lessons":[{"class":"JSS1","day":"Monday","period":0,"subject":"Mathematics","teacherId":"t1"}]}`

	w := doJSON(router, http.MethodPost, "/api/v1/timetables/validate", payload)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, false, env.Meta["valid"])
}

func TestTimetableHandlerRoster(t *testing.T) {
	router := newTimetableRouter(&timetableManagerMock{}, models.RoleAdmin)

	w := doJSON(router, http.MethodGet, "/api/v1/timetable-teachers", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPut, "/api/v1/timetable-teachers", `{"name":"Mrs. Ada","employmentType":"FT","subjects":["Art"]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/timetable-teachers/t1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTimetableHandlerTeacherSchedule(t *testing.T) {
	teacher := newTimetableRouter(&timetableManagerMock{}, models.RoleTeacher)

	w := doJSON(teacher, http.MethodGet, "/api/v1/timetable-teachers/user-1/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	var lessons []models.TimetableSlot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &lessons))
	require.Len(t, lessons, 1)
	assert.Equal(t, "user-1", lessons[0].TeacherID)

	w = doJSON(teacher, http.MethodGet, "/api/v1/timetable-teachers/someone-else/schedule", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := newTimetableRouter(&timetableManagerMock{}, models.RoleAdmin)
	w = doJSON(admin, http.MethodGet, "/api/v1/timetable-teachers/someone-else/schedule", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
