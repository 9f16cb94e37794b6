package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/dates"
)

// fakeGenerator returns a canned reply and records every request
type fakeGenerator struct {
	reply    string
	err      error
	requests []Request
}

func (f *fakeGenerator) Generate(_ context.Context, req Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func newAssistant(gen Generator) *Assistant {
	return NewAssistant(gen, zap.NewNop())
}

const planReplyJSON = `{
  "weeks": [
    {
      "title": "Stage 1: Documents",
      "start_date": "2025-03-03",
      "end_date": "2025-03-09",
      "days": [
        {"date": "2025-03-03", "tasks": [
          {"id": "ai-1", "type": "task", "content": " Request statutes ", "completed": true, "event_count": 7},
          {"id": "ai-1", "type": "meeting", "content": "Kick-off", "data": {"time": "10:00", "participants": ["CEO", "CFO"]}}
        ]},
        {"date": "2025-03-04", "tasks": []}
      ]
    },
    {
      "title": "Stage 2: Interviews",
      "start_date": "2025-03-10",
      "end_date": "2025-03-16",
      "days": [
        {"date": "2025-03-10", "tasks": [
          {"type": "interview", "content": "Interview HR lead", "data": {"interviewee": "HR lead"}}
        ]}
      ]
    }
  ]
}`

func TestDurationWeeks(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2025-03-01", "2025-03-01", 1},
		{"2025-03-01", "2025-03-07", 1},
		{"2025-03-01", "2025-03-08", 2},
		{"2025-03-01", "2025-03-28", 4},
		{"2025-03-10", "2025-03-01", 0},
	}
	for _, tt := range tests {
		got := DurationWeeks(dates.MustParse(tt.start), dates.MustParse(tt.end))
		assert.Equal(t, tt.want, got, "%s..%s", tt.start, tt.end)
	}
}

func TestDefaultEndDate(t *testing.T) {
	start := dates.MustParse("2025-03-01")
	assert.Equal(t, "2025-03-28", DefaultEndDate(start, dates.Date{}).String())
	assert.Equal(t, "2025-04-30", DefaultEndDate(start, dates.MustParse("2025-04-30")).String())
}

func TestGeneratePlan(t *testing.T) {
	gen := &fakeGenerator{reply: planReplyJSON}
	a := newAssistant(gen)

	out, err := a.GeneratePlan(context.Background(), PlanRequest{
		Name:           "Warehouse audit",
		Description:    "Inventory controls",
		StartDate:      dates.MustParse("2025-03-03"),
		ApprovalPeriod: PeriodWeekly,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Same(t, planSchema, req.Schema)
	assert.Contains(t, req.Prompt, "from 2025-03-03 to 2025-03-30")
	assert.Contains(t, req.Prompt, "Total duration: 4 weeks")

	first := out[0]
	assert.Equal(t, "Stage 1: Documents", first.Title)
	assert.Equal(t, "2025-03-09", first.EndDate.String())
	assert.Equal(t, []string{"2025-03-03", "2025-03-04"}, first.Plan.Dates())
	assert.Empty(t, first.Plan["2025-03-04"].Tasks)

	items := first.Plan["2025-03-03"].Tasks
	require.Len(t, items, 2)
	assert.Equal(t, "Request statutes", items[0].Content)
	assert.NotEqual(t, items[0].ID, items[1].ID)
	seen := map[string]bool{}
	for _, w := range out {
		for _, item := range w.Plan.Items() {
			_, err := uuid.Parse(item.ID)
			assert.NoError(t, err, "ids are reassigned")
			assert.False(t, seen[item.ID])
			seen[item.ID] = true
			assert.False(t, item.Completed)
			assert.Zero(t, item.EventCount)
		}
	}

	meeting, ok := items[1].Data.(weeks.MeetingData)
	require.True(t, ok)
	assert.Equal(t, []string{"CEO", "CFO"}, meeting.Participants)

	interview := out[1].Plan["2025-03-10"].Tasks[0]
	assert.Equal(t, weeks.InterviewData{Interviewee: "HR lead"}, interview.Data)
}

func TestGeneratePlanRejectsMalformedReplies(t *testing.T) {
	replies := map[string]string{
		"not json":      "Sure! Here is your plan.",
		"no weeks":      `{"weeks": []}`,
		"bad date":      `{"weeks":[{"title":"S","start_date":"03/03/2025","end_date":"2025-03-09","days":[]}]}`,
		"reversed":      `{"weeks":[{"title":"S","start_date":"2025-03-09","end_date":"2025-03-03","days":[]}]}`,
		"unknown type":  `{"weeks":[{"title":"S","start_date":"2025-03-03","end_date":"2025-03-09","days":[{"date":"2025-03-03","tasks":[{"type":"lunch","content":"eat"}]}]}]}`,
		"missing title": `{"weeks":[{"title":" ","start_date":"2025-03-03","end_date":"2025-03-09","days":[]}]}`,
		"bad payload":   `{"weeks":[{"title":"S","start_date":"2025-03-03","end_date":"2025-03-09","days":[{"date":"2025-03-03","tasks":[{"type":"meeting","content":"m","data":{"participants":"CEO"}}]}]}]}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			a := newAssistant(&fakeGenerator{reply: reply})
			out, err := a.GeneratePlan(context.Background(), PlanRequest{
				Name:      "P",
				StartDate: dates.MustParse("2025-03-03"),
				EndDate:   dates.MustParse("2025-03-09"),
			})
			assert.Nil(t, out, "no partial plan")
			assert.ErrorIs(t, err, ErrInvalidResponse)
			assert.Equal(t, 422, apperr.Status(err))
		})
	}
}

func TestGeneratePlanAcceptsFencedJSON(t *testing.T) {
	a := newAssistant(&fakeGenerator{reply: "```json\n" + planReplyJSON + "\n```"})
	out, err := a.GeneratePlan(context.Background(), PlanRequest{
		StartDate: dates.MustParse("2025-03-03"),
		EndDate:   dates.MustParse("2025-03-16"),
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGeneratePlanPropagatesUnavailable(t *testing.T) {
	gen := &fakeGenerator{err: upstream("gemini", errors.New("429 quota exceeded"))}
	_, err := newAssistant(gen).GeneratePlan(context.Background(), PlanRequest{StartDate: dates.MustParse("2025-03-03")})

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 502, apperr.Status(err))
	assert.Contains(t, err.Error(), "429 quota exceeded")
}

func TestGeneratePlanRejectsReversedRange(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := newAssistant(gen).GeneratePlan(context.Background(), PlanRequest{
		StartDate: dates.MustParse("2025-03-10"),
		EndDate:   dates.MustParse("2025-03-01"),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, gen.requests)
}

func reportFixture() ReportInput {
	week := &weeks.Week{
		ID:        uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Title:     "Stage 1: Documents",
		StartDate: dates.MustParse("2025-03-03"),
		EndDate:   dates.MustParse("2025-03-09"),
		Plan: weeks.Plan{
			"2025-03-03": {Tasks: []weeks.PlanItem{
				{ID: "a", Type: weeks.ItemTask, Content: "Request statutes", EventCount: 2},
				{ID: "b", Type: weeks.ItemMeeting, Content: "Kick-off"},
			}},
		},
	}
	return ReportInput{
		ProjectName:        "Warehouse audit",
		ProjectDescription: "Inventory controls",
		Week:               week,
		Events: []*events.Event{
			{
				Type:        events.TypeComment,
				Content:     "Statutes received",
				AuthorEmail: "lead@example.com",
				CreatedAt:   time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC),
				Data:        events.Data{FileURLs: []events.FileRef{{Name: "statutes.pdf", URL: "http://x/statutes.pdf"}}},
			},
			{
				Type:        events.TypeMeeting,
				Content:     "Kick-off held",
				AuthorEmail: "client@example.com",
				CreatedAt:   time.Date(2025, 3, 3, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
			},
		},
	}
}

func TestReportPrompt(t *testing.T) {
	prompt, err := ReportPrompt(reportFixture())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "report_prompt", []byte(prompt))
}

func TestGenerateReportPassesMarkdownThrough(t *testing.T) {
	gen := &fakeGenerator{reply: "### 1. Stage summary\nAll good."}
	report, err := newAssistant(gen).GenerateReport(context.Background(), reportFixture())
	require.NoError(t, err)
	assert.Equal(t, "### 1. Stage summary\nAll good.", report)
	assert.Nil(t, gen.requests[0].Schema)
}

func TestRecognizeTextSendsImage(t *testing.T) {
	gen := &fakeGenerator{reply: "line one\nline two"}
	text, err := newAssistant(gen).RecognizeText(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)

	require.Len(t, gen.requests[0].Parts, 1)
	assert.Equal(t, "image/jpeg", gen.requests[0].Parts[0].MIMEType)

	_, err = newAssistant(gen).RecognizeText(context.Background(), nil, "image/jpeg")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAnalyzeInterview(t *testing.T) {
	gen := &fakeGenerator{reply: "**Summary:** onboarding"}
	_, err := newAssistant(gen).AnalyzeInterview(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, gen.requests)

	out, err := newAssistant(gen).AnalyzeInterview(context.Background(), "HR onboarding process")
	require.NoError(t, err)
	assert.Equal(t, "**Summary:** onboarding", out)
	assert.Contains(t, gen.requests[0].Prompt, `"HR onboarding process"`)
}

func TestDescribeStageResendsHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "Stage goals: ..."}
	history := []Turn{
		{Role: RoleUser, Text: "Stage about procurement"},
		{Role: RoleModel, Text: "Draft 1"},
	}
	_, err := newAssistant(gen).DescribeStage(context.Background(), history, "Make it shorter")
	require.NoError(t, err)
	assert.Equal(t, history, gen.requests[0].History)
	assert.Equal(t, "Make it shorter", gen.requests[0].Prompt)
	assert.NotEmpty(t, gen.requests[0].System)

	_, err = newAssistant(gen).DescribeStage(context.Background(), []Turn{{Role: "system", Text: "x"}}, "hi")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNewGeneratorWithoutKey(t *testing.T) {
	gen, err := NewGenerator(context.Background(), Config{Provider: ProviderOpenAI}, zap.NewNop())
	require.NoError(t, err)
	_, err = gen.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewGenerator(context.Background(), Config{Provider: "claude"}, zap.NewNop())
	assert.Error(t, err)
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(planSchema)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"weeks"}, s.Required)

	stage := s.Properties["weeks"].Items
	assert.Equal(t, genai.TypeArray, s.Properties["weeks"].Type)
	task := stage.Properties["days"].Items.Properties["tasks"].Items
	assert.Equal(t, itemTypes, task.Properties["type"].Enum)
	assert.Equal(t, genai.TypeString, task.Properties["content"].Type)
}

func TestOpenAIMessages(t *testing.T) {
	msgs, err := openAIMessages(Request{
		System:  "sys",
		History: []Turn{{Role: RoleUser, Text: "a"}, {Role: RoleModel, Text: "b"}},
		Prompt:  "c",
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	msgs, err = openAIMessages(Request{Prompt: "read", Parts: []Part{{MIMEType: "image/png", Data: []byte("png")}}})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = openAIMessages(Request{Prompt: "listen", Parts: []Part{{MIMEType: "audio/ogg", Data: []byte("a")}}})
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
	assert.True(t, strings.HasPrefix(stripCodeFence("```\n[1]\n```"), "["))
}
