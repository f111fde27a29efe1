package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"eye-of-horus/internal/common"
	"eye-of-horus/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeBackend struct {
	response []byte
	err      error
	calls    int
	last     models.GenerationRequest
}

func (f *fakeBackend) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	f.calls++
	f.last = req
	return f.response, f.err
}

const cannedResponse = `[
	{"ticket_number":"ENG-12","action_type":"POST_COMMENT",
	 "action_details":{"fields_to_update":[],"comment_text":"Blocked on payments API","tag_users":["u-3"],"new_stage":"","reason":""},
	 "confidence_score":0.9,"transcript_context":"payments API down hai","reasoning":"Blocker raised"},
	{"ticket_number":"ENG-404","action_type":"UPDATE_FIELDS",
	 "action_details":{"fields_to_update":[{"field_name":"dev_end_date","new_value":"2026-10-20"}],"comment_text":"","tag_users":[],"new_stage":"","reason":""},
	 "confidence_score":0.6,"transcript_context":"next tuesday","reasoning":"Date moved"}
]`

func sprintRecords(t *testing.T) []models.SprintRecord {
	t.Helper()
	var records []models.SprintRecord
	raw := `[{"id":"abc123","display_id":"ENG-12","title":"Payments retry","owned_by":[{"id":"u-3"}]}]`
	require.NoError(t, json.Unmarshal([]byte(raw), &records))
	return records
}

func newTestAnalyzer(t *testing.T, backend *fakeBackend) *Analyzer {
	t.Helper()
	fixed := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return NewAnalyzer(backend, newTestPromptBuilder(t), arbor.NewLogger()).
		WithClock(func() time.Time { return fixed })
}

func TestAnalyzeRoundTrip(t *testing.T) {
	backend := &fakeBackend{response: []byte(cannedResponse)}
	analyzer := newTestAnalyzer(t, backend)

	actions, err := analyzer.Analyze(context.Background(), models.AnalysisInput{
		Transcript:    "Arjun: payments API down hai",
		PodMembers:    testMembers(),
		SprintRecords: sprintRecords(t),
	})
	require.NoError(t, err)
	require.Len(t, actions, 2)

	assert.Equal(t, "ENG-12", actions[0].TicketNumber)
	assert.Equal(t, "abc123", actions[0].TicketID)
	assert.Equal(t, models.ActionPostComment, actions[0].ActionType)
	assert.Equal(t, []string{"u-3"}, actions[0].ActionDetails.TagUsers)

	assert.Equal(t, "ENG-404", actions[1].TicketNumber)
	assert.Equal(t, "", actions[1].TicketID)
	assert.Equal(t, []models.FieldUpdate{{FieldName: "dev_end_date", NewValue: "2026-10-20"}}, actions[1].ActionDetails.FieldsToUpdate)

	require.Equal(t, 1, backend.calls)
	assert.True(t, strings.HasPrefix(backend.last.Prompt, "Today's date is 2026-10-16\n"))
	assert.True(t, strings.HasSuffix(backend.last.Prompt, "Arjun: payments API down hai"))
	assert.NotEmpty(t, backend.last.SystemInstruction)
	require.NotNil(t, backend.last.ResponseSchema)
	assert.Equal(t, models.SchemaArray, backend.last.ResponseSchema.Type)
}

func TestAnalyzeRejectsUnknownActionType(t *testing.T) {
	backend := &fakeBackend{response: []byte(`[{"ticket_number":"ENG-12","action_type":"CLOSE_TICKET","action_details":{},
		"confidence_score":1,"transcript_context":"","reasoning":""}]`)}
	analyzer := newTestAnalyzer(t, backend)

	actions, err := analyzer.Analyze(context.Background(), models.AnalysisInput{SprintRecords: sprintRecords(t)})
	require.Error(t, err)
	assert.Nil(t, actions)

	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeValidationError, se.Code)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestAnalyzeOwnerMissingSkipsBackend(t *testing.T) {
	backend := &fakeBackend{response: []byte(cannedResponse)}
	analyzer := newTestAnalyzer(t, backend)

	records := []models.SprintRecord{{ID: "abc123", DisplayID: "ENG-12"}}
	_, err := analyzer.Analyze(context.Background(), models.AnalysisInput{SprintRecords: records})
	require.Error(t, err)

	se := common.AsServiceError(err)
	assert.Equal(t, common.CodeWrongInput, se.Code)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Contains(t, se.Message, "ENG-12")
	assert.Equal(t, 0, backend.calls)
}

func TestAnalyzeBackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		status   int
	}{
		{"plain error", errors.New("connection reset"), common.CodeBackendError, http.StatusInternalServerError},
		{"rate limited", common.NewRateLimitedError("quota"), common.CodeRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := newTestAnalyzer(t, &fakeBackend{err: tt.err})
			actions, err := analyzer.Analyze(context.Background(), models.AnalysisInput{SprintRecords: sprintRecords(t)})
			require.Error(t, err)
			assert.Nil(t, actions)

			se := common.AsServiceError(err)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.status, se.Status)
		})
	}
}

func TestAnalyzeWithoutBackend(t *testing.T) {
	analyzer := NewAnalyzer(nil, newTestPromptBuilder(t), arbor.NewLogger())
	_, err := analyzer.Analyze(context.Background(), models.AnalysisInput{})
	assert.Equal(t, common.CodeNotConfigured, common.AsServiceError(err).Code)
}
