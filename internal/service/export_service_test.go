package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
)

type fakeExportAttendance struct {
	records []models.AttendanceRecordDetail
	from    *time.Time
	to      *time.Time
}

func (f *fakeExportAttendance) List(_ context.Context, _ models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error) {
	f.from, f.to = from, to
	return f.records, nil
}

type fakeExportStorage struct {
	saved map[string][]byte
}

func (f *fakeExportStorage) Save(filename string, data []byte) (string, error) {
	f.saved[filename] = data
	return filename, nil
}

func exportRecord(name, session string, late bool) models.AttendanceRecordDetail {
	code := "S001"
	return models.AttendanceRecordDetail{
		AttendanceRecord: models.AttendanceRecord{
			StudentID:   "s1",
			SessionID:   "sess1",
			Date:        time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			ArrivalTime: models.NewClock(9, 5, 0),
			IsLate:      late,
		},
		StudentName: name,
		StudentCode: &code,
		SessionName: session,
		ClassName:   "Math 101",
	}
}

func newExportFixture() (*ExportService, *fakeExportAttendance, *fakeExportStorage) {
	attendance := &fakeExportAttendance{records: []models.AttendanceRecordDetail{
		exportRecord("Ada", "Lecture 1", true),
	}}
	storage := &fakeExportStorage{saved: map[string][]byte{}}
	stats := &fakeOverviewProvider{overview: testOverview()}
	svc := NewExportService(attendance, stats, storage, zap.NewNop())
	return svc, attendance, storage
}

func TestAttendanceReportCSV(t *testing.T) {
	svc, attendance, storage := newExportFixture()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	result, err := svc.AttendanceReport(context.Background(), models.AdminScope(), FormatCSV, &from, &to)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	content := string(result.Content)
	assert.Contains(t, content, "Date,Student,Code,Session,Class,Arrival,Late")
	assert.Contains(t, content, "2026-03-02,Ada,S001,Lecture 1,Math 101,09:05:00,true")

	assert.Equal(t, &from, attendance.from)
	assert.Equal(t, &to, attendance.to)
	assert.Len(t, storage.saved, 1)
}

func TestStatisticsReportPDF(t *testing.T) {
	svc, _, storage := newExportFixture()

	result, err := svc.StatisticsReport(context.Background(), models.AdminScope(), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".pdf"))
	assert.True(t, len(result.Content) > 0)
	assert.Equal(t, "%PDF", string(result.Content[:4]))
	assert.Len(t, storage.saved, 1)
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc, _, _ := newExportFixture()

	_, err := svc.AttendanceReport(context.Background(), models.AdminScope(), ExportFormat("xlsx"), nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
