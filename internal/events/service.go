package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/realtime"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/apperr"
)

// Stages resolves the stage an event is posted to and keeps the
// denormalized event count on its plan items in step
type Stages interface {
	GetWeek(ctx context.Context, id uuid.UUID) (*weeks.Week, error)
	AdjustEventCount(ctx context.Context, weekID uuid.UUID, taskID string, delta int) error
}

// Indexer mirrors events into a search index
type Indexer interface {
	IndexEvent(ctx context.Context, event *Event) error
	RemoveEvent(ctx context.Context, id uuid.UUID) error
}

// Assistant is the slice of the AI adapter the event log uses
type Assistant interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
	AnalyzeInterview(ctx context.Context, interviewContext string) (string, error)
}

type nopIndexer struct{}

func (nopIndexer) IndexEvent(context.Context, *Event) error   { return nil }
func (nopIndexer) RemoveEvent(context.Context, uuid.UUID) error { return nil }

var meetingTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

// Service provides event log business logic
type Service struct {
	repo      Repository
	storage   *StorageProvider
	stages    Stages
	publisher realtime.Publisher
	indexer   Indexer
	assistant Assistant
	logger    *zap.Logger
}

// NewService creates a new event log service
func NewService(repo Repository, storage *StorageProvider, stages Stages, publisher realtime.Publisher, indexer Indexer, assistant Assistant, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if indexer == nil {
		indexer = nopIndexer{}
	}
	return &Service{
		repo:      repo,
		storage:   storage,
		stages:    stages,
		publisher: publisher,
		indexer:   indexer,
		assistant: assistant,
		logger:    logger,
	}
}

// List returns the feed of a plan item, oldest first
func (s *Service) List(ctx context.Context, taskID string) ([]*Event, error) {
	if taskID == "" {
		return nil, apperr.Validation("task_id is required")
	}
	return s.repo.ListByTask(ctx, taskID)
}

// ListByWeek returns every event of a stage, oldest first
func (s *Service) ListByWeek(ctx context.Context, weekID uuid.UUID) ([]*Event, error) {
	return s.repo.ListByWeek(ctx, weekID)
}

// Append validates the request, stores attachments, then inserts the event.
// Attachments are all or nothing.
func (s *Service) Append(ctx context.Context, author Author, req *AppendRequest) (*Event, error) {
	event, err := s.buildEvent(author, req)
	if err != nil {
		return nil, err
	}
	if err := s.resolveTarget(ctx, event); err != nil {
		return nil, err
	}

	var uploaded []FileRef
	rollback := func() {}
	if len(req.Files) > 0 {
		uploaded, rollback, err = s.storage.UploadAll(ctx, author.UserID, req.TaskID, req.Files)
		if err != nil {
			return nil, err
		}
		event.Data.FileURLs = uploaded
	}
	if event.Type == TypeInterview && event.Content == "" && len(uploaded) > 0 {
		event.Content = "Attached audio recording: " + uploaded[0].Name
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		rollback()
		return nil, err
	}

	if event.ParentEventID != nil {
		if stored, err := s.repo.GetEvent(ctx, event.ID); err == nil {
			event = stored
		}
	}

	s.afterWrite(ctx, event, 1, realtime.Insert)
	if err := s.indexer.IndexEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to index event", zap.String("event_id", event.ID.String()), zap.Error(err))
	}

	s.logger.Info("Event appended",
		zap.String("event_id", event.ID.String()),
		zap.String("task_id", event.TaskID),
		zap.String("type", string(event.Type)),
	)
	return event, nil
}

// buildEvent validates without touching the network or the database
func (s *Service) buildEvent(author Author, req *AppendRequest) (*Event, error) {
	if !req.Type.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown event type %q", req.Type))
	}
	if req.WeekID == uuid.Nil || strings.TrimSpace(req.TaskID) == "" {
		return nil, apperr.Validation("week_id and task_id are required")
	}

	content := strings.TrimSpace(req.Content)
	event := &Event{
		ProjectID:     req.ProjectID,
		WeekID:        req.WeekID,
		TaskID:        req.TaskID,
		UserID:        author.UserID,
		AuthorEmail:   author.Email,
		Type:          req.Type,
		ParentEventID: req.ParentEventID,
	}

	switch req.Type {
	case TypeMeeting:
		at, err := parseMeetingTime(req.MeetingTime)
		if err != nil {
			return nil, err
		}
		event.Data.MeetingTime = &at
		event.Data.Participants = cleanParticipants(req.Participants)
		if content == "" {
			return nil, apperr.Validation("meeting notes are required")
		}
	case TypeInterview:
		if !hasAudio(req.Files) {
			return nil, apperr.Validation("an interview needs an audio recording")
		}
		if content == "" && req.DurationSeconds > 0 {
			content = fmt.Sprintf("Interview recording (%d sec.)", req.DurationSeconds)
		}
	default:
		if content == "" && len(req.Files) == 0 {
			return nil, apperr.Validation("content or an attachment is required")
		}
	}

	event.Content = content
	return event, nil
}

// resolveTarget loads the stage, takes the project from it and checks the
// plan item exists, so the tracked count and the per-project aggregation
// cover the same events.
func (s *Service) resolveTarget(ctx context.Context, event *Event) error {
	week, err := s.stages.GetWeek(ctx, event.WeekID)
	if err != nil {
		return err
	}
	if event.ProjectID != uuid.Nil && event.ProjectID != week.ProjectID {
		return apperr.Validation(fmt.Sprintf("week %s does not belong to project %s", week.ID, event.ProjectID))
	}
	if _, _, ok := week.Plan.FindItem(event.TaskID); !ok {
		return apperr.Validation(fmt.Sprintf("task %s is not in the plan of week %s", event.TaskID, week.ID))
	}
	event.ProjectID = week.ProjectID
	return nil
}

// Delete removes an event; only its author may do so
func (s *Service) Delete(ctx context.Context, userID, eventID uuid.UUID) error {
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.UserID != userID {
		return apperr.Forbidden("only the author can delete an event")
	}
	if err := s.repo.DeleteEvent(ctx, eventID); err != nil {
		return err
	}

	s.afterWrite(ctx, event, -1, realtime.Delete)
	if err := s.indexer.RemoveEvent(ctx, eventID); err != nil {
		s.logger.Warn("Failed to remove event from index", zap.String("event_id", eventID.String()), zap.Error(err))
	}
	return nil
}

// RecognizeNotes turns a photo of handwritten notes into a comment
func (s *Service) RecognizeNotes(ctx context.Context, author Author, target Target, image []byte, mimeType string) (*Event, error) {
	if len(image) == 0 {
		return nil, apperr.Validation("image is required")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, apperr.Validation("file must be an image")
	}

	text, err := s.assistant.RecognizeText(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}

	return s.Append(ctx, author, &AppendRequest{
		ProjectID: target.ProjectID,
		WeekID:    target.WeekID,
		TaskID:    target.TaskID,
		Type:      TypeComment,
		Content:   "**Recognized notes:**\n\n" + text,
	})
}

// AnalyzeInterview asks the assistant for an analysis of an interview and
// posts it as a reply to the recording event, when one is given.
func (s *Service) AnalyzeInterview(ctx context.Context, author Author, req *InterviewAnalysisRequest) (*Event, error) {
	if strings.TrimSpace(req.Context) == "" {
		return nil, apperr.Validation("interview context is required")
	}

	heading := "**Interview analysis:**"
	if req.ParentEventID != nil {
		parent, err := s.repo.GetEvent(ctx, *req.ParentEventID)
		if err != nil {
			return nil, err
		}
		if parent.Type != TypeInterview {
			return nil, apperr.Validation("only interview events can be analysed")
		}
		if len(parent.Data.FileURLs) > 0 {
			heading = fmt.Sprintf("**Analysis of recording %q:**", parent.Data.FileURLs[0].Name)
		}
	}

	text, err := s.assistant.AnalyzeInterview(ctx, req.Context)
	if err != nil {
		return nil, err
	}

	return s.Append(ctx, author, &AppendRequest{
		ProjectID:     req.ProjectID,
		WeekID:        req.WeekID,
		TaskID:        req.TaskID,
		Type:          TypeComment,
		Content:       heading + "\n\n" + text,
		ParentEventID: req.ParentEventID,
	})
}

func (s *Service) afterWrite(ctx context.Context, event *Event, delta int, typ realtime.ChangeType) {
	if err := s.stages.AdjustEventCount(ctx, event.WeekID, event.TaskID, delta); err != nil {
		// drift is repaired by the periodic resync
		s.logger.Warn("Failed to adjust event count",
			zap.String("week_id", event.WeekID.String()),
			zap.String("task_id", event.TaskID),
			zap.Error(err),
		)
	}
	s.publisher.Publish(realtime.LocalChange(realtime.TableEvents, typ, event.ID.String(), realtime.Scope{
		ProjectID: event.ProjectID.String(),
		WeekID:    event.WeekID.String(),
		TaskID:    event.TaskID,
	}, event))
}

func parseMeetingTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperr.Validation("meeting_time is required")
	}
	for _, layout := range meetingTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation(fmt.Sprintf("invalid meeting_time %q", raw))
}

func cleanParticipants(in []string) []string {
	var out []string
	for _, p := range in {
		for _, name := range strings.Split(p, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func hasAudio(files []Upload) bool {
	for _, f := range files {
		if strings.HasPrefix(f.ContentType, "audio/") {
			return true
		}
	}
	return false
}
