package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
)

const (
	recognizePrompt = "Recognize and return all handwritten and printed text in this image. " +
		"Keep the original formatting, including line breaks and indentation, as far as possible. " +
		"Return only the text, without any comments or explanations."

	stageSystemPrompt = "You help a business auditor write the description of an audit stage. " +
		"Answer with a concise description in Markdown: goals, scope and expected results of the stage."
)

// Assistant turns portal data into prompts and model output into portal data
type Assistant struct {
	gen    Generator
	logger *zap.Logger
}

// NewAssistant creates an assistant backed by gen
func NewAssistant(gen Generator, logger *zap.Logger) *Assistant {
	return &Assistant{gen: gen, logger: logger}
}

// ReportInput is everything a stage report is written from
type ReportInput struct {
	ProjectName        string
	ProjectDescription string
	Week               *weeks.Week
	Events             []*events.Event
}

type eventDigest struct {
	Type   events.EventType `json:"type"`
	Text   string           `json:"content"`
	Author string           `json:"author"`
	Date   string           `json:"date"`
	Files  []string         `json:"files,omitempty"`
}

// ReportPrompt renders the prompt for a stage report
func ReportPrompt(in ReportInput) (string, error) {
	digest := make([]eventDigest, 0, len(in.Events))
	for _, e := range in.Events {
		d := eventDigest{
			Type:   e.Type,
			Text:   e.Content,
			Author: e.AuthorEmail,
			Date:   e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
		for _, f := range e.Data.FileURLs {
			d.Files = append(d.Files, f.Name)
		}
		digest = append(digest, d)
	}
	raw, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode event digest: %w", err)
	}

	stats := in.Week.Plan.Stats()
	var b strings.Builder
	b.WriteString("You are a professional business auditor. Write a comprehensive progress report on the past audit stage for the business owner.\n")
	b.WriteString("The report must be structured and formal, yet clear. Use Markdown.\n\n")
	b.WriteString("Input data:\n\n")
	fmt.Fprintf(&b, "1. Project\n   Name: %q\n   Goals: %q\n\n", in.ProjectName, in.ProjectDescription)
	fmt.Fprintf(&b, "2. Stage\n   Title: %q\n   Dates: from %s to %s\n\n", in.Week.Title, in.Week.StartDate, in.Week.EndDate)
	fmt.Fprintf(&b, "3. Plan\n   Planned items: %d\n   Items with activity: %d\n   Items without activity: %d\n\n",
		stats.TotalItems, stats.ItemsWithEvents, stats.ItemsNoEvents)
	b.WriteString("4. Event log (comments, meetings, files) as JSON:\n```json\n")
	b.Write(raw)
	b.WriteString("\n```\n\n")
	b.WriteString("Write the report with these sections:\n")
	b.WriteString("### 1. Stage summary\n### 2. Key results and completed work\n")
	b.WriteString("### 3. Difficulties, risks and open questions\n### 4. Recommendations and next steps\n")
	b.WriteString("Support every statement with facts from the data above.\n")
	return b.String(), nil
}

// GenerateReport writes a Markdown report for a stage
func (a *Assistant) GenerateReport(ctx context.Context, in ReportInput) (string, error) {
	if in.Week == nil {
		return "", apperr.Validation("week is required")
	}
	prompt, err := ReportPrompt(in)
	if err != nil {
		return "", err
	}
	report, err := a.gen.Generate(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	a.logger.Info("Stage report generated",
		zap.String("week_id", in.Week.ID.String()),
		zap.Int("events", len(in.Events)),
	)
	return report, nil
}

// RecognizeText returns the text found in an image
func (a *Assistant) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", apperr.Validation("image is required")
	}
	return a.gen.Generate(ctx, Request{
		Prompt: recognizePrompt,
		Parts:  []Part{{MIMEType: mimeType, Data: image}},
	})
}

// AnalyzeInterview drafts an interview analysis from a text description of
// the conversation. The recording itself is not sent to the model.
func (a *Assistant) AnalyzeInterview(ctx context.Context, interviewContext string) (string, error) {
	interviewContext = strings.TrimSpace(interviewContext)
	if interviewContext == "" {
		return "", apperr.Validation("interview context is required")
	}

	var b strings.Builder
	b.WriteString("You are an auditor's assistant. You are given the context of an interview.\n")
	b.WriteString("Analyse it and write the report that an analysis of the recording could have produced.\n\n")
	fmt.Fprintf(&b, "Interview context: %q\n\n", interviewContext)
	b.WriteString("The report must include:\n")
	b.WriteString("1. **Summary:** one or two sentences on the topic.\n")
	b.WriteString("2. **Key points:** the 3-5 most important statements.\n")
	b.WriteString("3. **Conclusions and risks**\n")
	b.WriteString("4. **Next steps** for the auditor.\n")
	b.WriteString("Format the answer in Markdown.\n")

	return a.gen.Generate(ctx, Request{Prompt: b.String()})
}

// DescribeStage continues a drafting conversation about a stage description
func (a *Assistant) DescribeStage(ctx context.Context, history []Turn, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", apperr.Validation("message is required")
	}
	for _, t := range history {
		if t.Role != RoleUser && t.Role != RoleModel {
			return "", apperr.Validation(fmt.Sprintf("unknown role %q in history", t.Role))
		}
	}
	return a.gen.Generate(ctx, Request{
		System:  stageSystemPrompt,
		History: history,
		Prompt:  input,
	})
}
