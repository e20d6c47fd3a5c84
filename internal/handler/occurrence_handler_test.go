package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/middleware"
	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type stubOccurrenceService struct {
	cancelReq   *dto.CancelOccurrenceRequest
	cancelActor string
	cancelErr   error

	rescheduleReq *dto.RescheduleOccurrenceRequest
	rescheduleRes *dto.RescheduleOccurrenceResponse

	membershipType string
	membershipID   string
	membershipRes  *dto.MembershipResponse
}

func (s *stubOccurrenceService) Cancel(ctx context.Context, req dto.CancelOccurrenceRequest, actor string) (*dto.CancelOccurrenceResponse, error) {
	s.cancelReq = &req
	s.cancelActor = actor
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &dto.CancelOccurrenceResponse{OK: true}, nil
}

func (s *stubOccurrenceService) Reschedule(ctx context.Context, req dto.RescheduleOccurrenceRequest, actor string) (*dto.RescheduleOccurrenceResponse, error) {
	s.rescheduleReq = &req
	return s.rescheduleRes, nil
}

func (s *stubOccurrenceService) Membership(ctx context.Context, recordType, recordID string) (*dto.MembershipResponse, error) {
	s.membershipType = recordType
	s.membershipID = recordID
	return s.membershipRes, nil
}

func TestOccurrenceHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubOccurrenceService{}
	handler := NewOccurrenceHandler(svc)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = jsonRequest(t, http.MethodPost, "/occurrences/cancel", dto.CancelOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Cancel(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, svc.cancelReq)
	assert.Equal(t, "rec-1", svc.cancelReq.RecordID)
	assert.Equal(t, "user-1", svc.cancelActor)
}

func TestOccurrenceHandlerCancelWithoutClaimsUsesSystemActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubOccurrenceService{}
	handler := NewOccurrenceHandler(svc)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = jsonRequest(t, http.MethodPost, "/occurrences/cancel", dto.CancelOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
	})

	handler.Cancel(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "system", svc.cancelActor)
}

func TestOccurrenceHandlerReschedule(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prior := &models.TimeRange{
		Start: time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC),
	}
	svc := &stubOccurrenceService{rescheduleRes: &dto.RescheduleOccurrenceResponse{OK: true, PriorRange: prior}}
	handler := NewOccurrenceHandler(svc)

	newStart := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = jsonRequest(t, http.MethodPost, "/occurrences/reschedule", dto.RescheduleOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
		NewStart:   newStart,
		NewEnd:     newStart.Add(time.Hour),
	})

	handler.Reschedule(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, svc.rescheduleReq)
	assert.Equal(t, newStart, svc.rescheduleReq.NewStart.UTC())

	envelope := decodeEnvelope(t, recorder)
	assert.Nil(t, envelope.Error)
}

func TestOccurrenceHandlerMembershipReadsQueryParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	seriesID := "series-1"
	svc := &stubOccurrenceService{membershipRes: &dto.MembershipResponse{IsMember: true, SeriesID: &seriesID}}
	handler := NewOccurrenceHandler(svc)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/occurrences/membership?record_type=appointment&record_id=rec-1", nil)

	handler.Membership(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "appointment", svc.membershipType)
	assert.Equal(t, "rec-1", svc.membershipID)
}

func TestOccurrenceHandlerCancelServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubOccurrenceService{cancelErr: appErrors.Clone(appErrors.ErrValidation, "record_type is required")}
	handler := NewOccurrenceHandler(svc)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = jsonRequest(t, http.MethodPost, "/occurrences/cancel", dto.CancelOccurrenceRequest{})

	handler.Cancel(c)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	envelope := decodeEnvelope(t, recorder)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}
