package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/confidence"
	"github.com/freightflow/extractd/internal/repository"
	"github.com/freightflow/extractd/internal/review"
)

func TestWriteWorkbook(t *testing.T) {
	jobID := uuid.New()
	reports := []repository.StoredReport{
		{
			JobID: jobID,
			Report: confidence.Report{
				JobID:   jobID,
				Overall: 0.72,
				Fields: []confidence.FieldScore{
					{Name: "client_vat_number", Value: "RO123456", Source: "openai", Agreement: 0.5, RuleValid: true, Confidence: 0.7, Critical: true, Flagged: true},
					{Name: "pickup_city", Value: "Arad", Source: "openai", Agreement: 1.0, RuleValid: true, Confidence: 1.0},
				},
				FlaggedCritical: 1,
			},
			Verdict:   review.Verdict{Decision: constants.RouteManualReview, Reasons: []string{"critical field flagged"}},
			CreatedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(reports, &buf))
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	jobs, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, jobID.String(), jobs[1][0])
	assert.Equal(t, "MANUAL_REVIEW", jobs[1][2])

	fields, err := f.GetRows(fieldsSheet)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "client_vat_number", fields[1][1])
	assert.Equal(t, "RO123456", fields[1][2])
}

func TestWriteWorkbookEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	jobs, err := f.GetRows(jobsSheet)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "headers only")
}
