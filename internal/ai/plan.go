package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/dates"
)

// Reporting cadence of a project
const (
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// DefaultProjectDays is the length of a project created without an end date
const DefaultProjectDays = 28

// PlanRequest describes the project a plan is generated for
type PlanRequest struct {
	Name           string
	Description    string
	StartDate      dates.Date
	EndDate        dates.Date
	ApprovalPeriod string
}

// GeneratedWeek is one stage proposed by the model
type GeneratedWeek struct {
	Title     string     `json:"title"`
	StartDate dates.Date `json:"start_date"`
	EndDate   dates.Date `json:"end_date"`
	Plan      weeks.Plan `json:"plan"`
}

// DefaultEndDate returns end, or start plus 27 days when end is empty
func DefaultEndDate(start, end dates.Date) dates.Date {
	if end.IsZero() {
		return start.AddDays(DefaultProjectDays - 1)
	}
	return end
}

// DurationWeeks is the number of started weeks between start and end,
// both inclusive.
func DurationWeeks(start, end dates.Date) int {
	days := dates.InclusiveDays(start, end)
	if days <= 0 {
		return 0
	}
	return (days + 6) / 7
}

var itemTypes = []string{
	string(weeks.ItemTask),
	string(weeks.ItemMeeting),
	string(weeks.ItemInterview),
	string(weeks.ItemDocReview),
	string(weeks.ItemObservation),
}

func str(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }

// planSchema lists days as an array since the model cannot emit a schema
// with date keys; parsePlan folds it back into a date-keyed plan.
var planSchema = &Schema{
	Type:     TypeObject,
	Required: []string{"weeks"},
	Properties: map[string]*Schema{
		"weeks": {
			Type:        TypeArray,
			Description: "Audit stages in chronological order.",
			Items: &Schema{
				Type:     TypeObject,
				Required: []string{"title", "start_date", "end_date", "days"},
				Properties: map[string]*Schema{
					"title":      str("Short stage title, e.g. \"Stage 1: Collecting documents\"."),
					"start_date": str("First day of the stage, YYYY-MM-DD."),
					"end_date":   str("Last day of the stage, YYYY-MM-DD."),
					"days": {
						Type:        TypeArray,
						Description: "Working days of the stage.",
						Items: &Schema{
							Type:     TypeObject,
							Required: []string{"date", "tasks"},
							Properties: map[string]*Schema{
								"date": str("YYYY-MM-DD"),
								"tasks": {
									Type: TypeArray,
									Items: &Schema{
										Type:     TypeObject,
										Required: []string{"type", "content"},
										Properties: map[string]*Schema{
											"type":    {Type: TypeString, Enum: itemTypes},
											"content": str("Concrete action for the auditor."),
											"data": {
												Type:        TypeObject,
												Description: "Optional details for meeting and interview items.",
												Properties: map[string]*Schema{
													"time":         str("HH:MM"),
													"location":     str(""),
													"agenda":       str(""),
													"participants": {Type: TypeArray, Items: str("")},
													"interviewee":  str(""),
												},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	},
}

func planPrompt(req PlanRequest, weeksCount int) string {
	period := "weekly"
	if req.ApprovalPeriod == PeriodMonthly {
		period = "monthly"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed business audit plan.\n")
	fmt.Fprintf(&b, "Project name: %q\n", req.Name)
	fmt.Fprintf(&b, "Description and goals: %q\n", req.Description)
	fmt.Fprintf(&b, "Dates: from %s to %s.\n", req.StartDate, req.EndDate)
	fmt.Fprintf(&b, "Total duration: %d weeks. Reporting is %s.\n\n", weeksCount, period)
	fmt.Fprintf(&b, "Split the plan into %d stages, one per week. The first stage starts on %s and every stage lasts 7 days.\n", weeksCount, req.StartDate)
	b.WriteString("Give each stage a short, specific title and exact start and end dates.\n")
	b.WriteString("For each stage list Monday to Friday with the auditor's tasks for that day.\n")
	b.WriteString("Task types: task (general), meeting, interview, doc_review (document analysis), observation.\n")
	b.WriteString("Meeting and interview tasks may carry time, location, agenda, participants and interviewee in data.\n")
	return b.String()
}

// GeneratePlan asks the model for a full stage plan. The result is all or
// nothing: any malformed stage fails the whole call with ErrInvalidResponse.
func (a *Assistant) GeneratePlan(ctx context.Context, req PlanRequest) ([]GeneratedWeek, error) {
	req.EndDate = DefaultEndDate(req.StartDate, req.EndDate)
	count := DurationWeeks(req.StartDate, req.EndDate)
	if count == 0 {
		return nil, apperr.Validation("end date precedes start date")
	}

	raw, err := a.gen.Generate(ctx, Request{Prompt: planPrompt(req, count), Schema: planSchema})
	if err != nil {
		return nil, err
	}

	out, err := parsePlan(raw)
	if err != nil {
		a.logger.Warn("Discarding malformed plan", zap.Error(err), zap.Int("response_bytes", len(raw)))
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return out, nil
}

type planReply struct {
	Weeks []struct {
		Title     string `json:"title"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Days      []struct {
			Date  string            `json:"date"`
			Tasks []json.RawMessage `json:"tasks"`
		} `json:"days"`
	} `json:"weeks"`
}

func parsePlan(raw string) ([]GeneratedWeek, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripCodeFence(raw))))
	var reply planReply
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(reply.Weeks) == 0 {
		return nil, fmt.Errorf("no stages")
	}

	out := make([]GeneratedWeek, 0, len(reply.Weeks))
	for i, w := range reply.Weeks {
		title := strings.TrimSpace(w.Title)
		if title == "" {
			return nil, fmt.Errorf("stage %d: empty title", i+1)
		}
		start, err := dates.Parse(w.StartDate)
		if err != nil {
			return nil, fmt.Errorf("stage %d: start_date: %w", i+1, err)
		}
		end, err := dates.Parse(w.EndDate)
		if err != nil {
			return nil, fmt.Errorf("stage %d: end_date: %w", i+1, err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("stage %d: end_date before start_date", i+1)
		}

		plan := weeks.Plan{}
		for _, day := range w.Days {
			d, err := dates.Parse(day.Date)
			if err != nil {
				return nil, fmt.Errorf("stage %d: day: %w", i+1, err)
			}
			dp := plan[d.String()]
			for _, rawTask := range day.Tasks {
				var item weeks.PlanItem
				if err := json.Unmarshal(rawTask, &item); err != nil {
					return nil, fmt.Errorf("stage %d, %s: %w", i+1, d, err)
				}
				dp.Tasks = append(dp.Tasks, sanitizeItem(item))
			}
			if dp.Tasks == nil {
				dp.Tasks = []weeks.PlanItem{}
			}
			plan[d.String()] = dp
		}

		out = append(out, GeneratedWeek{Title: title, StartDate: start, EndDate: end, Plan: plan})
	}
	return out, nil
}

// sanitizeItem drops anything the model has no say in
func sanitizeItem(item weeks.PlanItem) weeks.PlanItem {
	item.ID = uuid.NewString()
	item.Completed = false
	item.EventCount = 0
	item.Content = strings.TrimSpace(item.Content)
	if task, ok := item.Data.(weeks.TaskData); ok && len(task.Checklist) > 0 {
		checklist := make([]weeks.ChecklistItem, len(task.Checklist))
		for i, c := range task.Checklist {
			checklist[i] = weeks.ChecklistItem{ID: uuid.NewString(), Text: c.Text}
		}
		item.Data = weeks.TaskData{Checklist: checklist}
	}
	return item
}
