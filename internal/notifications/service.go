package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/realtime/websocket"
	"audit-portal/portal-backend/internal/settings"
	"audit-portal/portal-backend/internal/weeks"
	"audit-portal/portal-backend/pkg/workflows"
)

const deliveryTimeout = 30 * time.Second

// ContactLookup returns the stored contact details of a user and of the
// audited company of a project
type ContactLookup interface {
	ContactProfile(ctx context.Context, userID uuid.UUID) (*settings.Profile, error)
	GetCompanyProfile(ctx context.Context, projectID uuid.UUID) (*settings.CompanyProfile, error)
}

// Pusher delivers messages to open WebSocket connections
type Pusher interface {
	SendToUser(userID string, msg websocket.Message) error
	SendToProject(projectID string, msg websocket.Message) error
}

// Service fans status changes out to the other party. It implements
// weeks.StatusNotifier; deliveries run in the background.
type Service struct {
	senders    []Sender
	contacts   ContactLookup
	pusher     Pusher
	deliveries DeliveryStore
	logger     *zap.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewService creates a notification service. pusher and deliveries may be nil.
func NewService(senders []Sender, contacts ContactLookup, pusher Pusher, deliveries DeliveryStore, logger *zap.Logger) *Service {
	return &Service{
		senders:    senders,
		contacts:   contacts,
		pusher:     pusher,
		deliveries: deliveries,
		logger:     logger,
		now:        time.Now,
	}
}

// StatusChanged implements weeks.StatusNotifier
func (s *Service) StatusChanged(ctx context.Context, change weeks.StatusChange) {
	notice := BuildNotice(change, s.now().UTC())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		s.Deliver(ctx, change.Week.UserID, notice)
	}()
}

// Wait blocks until every background delivery has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// Deliver pushes the notice to everyone viewing the project and, when the
// counterpart acted, to the auditor over every configured channel. A notice
// about a changed approved plan also goes to the company contacts.
func (s *Service) Deliver(ctx context.Context, auditorID uuid.UUID, notice Notice) []ChannelDeliveryStatus {
	if s.pusher != nil {
		msg := websocket.Message{Type: websocket.MessageTypeStatus, Data: notice, Timestamp: notice.At}
		if err := s.pusher.SendToProject(notice.ProjectID.String(), msg); err != nil {
			s.logger.Debug("No project viewers for status push", zap.String("project_id", notice.ProjectID.String()))
		}
	}

	var statuses []ChannelDeliveryStatus
	if notice.PlanChanged {
		statuses = append(statuses, s.notifyCompany(ctx, auditorID, notice)...)
	}

	// the counterpart has no stored identity, so only the auditor gets direct notices
	if notice.ActorRole != workflows.RoleCounterpart {
		return statuses
	}

	if s.pusher != nil {
		msg := websocket.Message{Type: websocket.MessageTypeNotification, Data: notice, Timestamp: notice.At}
		st := ChannelDeliveryStatus{Channel: ChannelWebSocket, Status: StatusSent, SentAt: &notice.At}
		if err := s.pusher.SendToUser(auditorID.String(), msg); err != nil {
			st.Status = StatusSkipped
		}
		statuses = append(statuses, st)
	}

	if len(s.senders) == 0 || s.contacts == nil {
		return statuses
	}
	profile, err := s.contacts.ContactProfile(ctx, auditorID)
	if err != nil {
		if !errors.Is(err, settings.ErrProfileNotFound) {
			s.logger.Warn("Failed to load notification profile",
				zap.String("user_id", auditorID.String()),
				zap.Error(err),
			)
		}
		return statuses
	}
	to := Recipient{
		UserID:           auditorID,
		Email:            profile.Email,
		Phone:            profile.Phone,
		TelegramBotToken: profile.TelegramBotToken,
		TelegramChatID:   profile.TelegramChatID,
	}

	for _, sender := range s.senders {
		st := s.sendVia(ctx, sender, to, notice)
		statuses = append(statuses, st)
		s.record(ctx, to.UserID, notice, st)
	}
	return statuses
}

// notifyCompany sends the notice to every company contact with an address.
// Deliveries are logged under the auditor who owns the project.
func (s *Service) notifyCompany(ctx context.Context, auditorID uuid.UUID, notice Notice) []ChannelDeliveryStatus {
	if len(s.senders) == 0 || s.contacts == nil {
		return nil
	}
	company, err := s.contacts.GetCompanyProfile(ctx, notice.ProjectID)
	if err != nil {
		s.logger.Warn("Failed to load company contacts",
			zap.String("project_id", notice.ProjectID.String()),
			zap.Error(err),
		)
		return nil
	}

	var statuses []ChannelDeliveryStatus
	for _, contact := range company.Contacts {
		if contact.Email == "" && contact.Phone == "" {
			continue
		}
		to := Recipient{UserID: auditorID, Email: contact.Email, Phone: contact.Phone}
		for _, sender := range s.senders {
			st := s.sendVia(ctx, sender, to, notice)
			statuses = append(statuses, st)
			s.record(ctx, auditorID, notice, st)
		}
	}
	return statuses
}

func (s *Service) sendVia(ctx context.Context, sender Sender, to Recipient, notice Notice) ChannelDeliveryStatus {
	st := ChannelDeliveryStatus{Channel: sender.Name()}
	providerID, err := sender.Send(ctx, to, notice)
	switch {
	case errors.Is(err, ErrNoAddress):
		st.Status = StatusSkipped
	case err != nil:
		st.Status = StatusFailed
		msg := err.Error()
		st.ErrorMessage = &msg
		s.logger.Warn("Notification delivery failed",
			zap.String("channel", sender.Name()),
			zap.String("week_id", notice.WeekID.String()),
			zap.Error(err),
		)
	default:
		st.Status = StatusSent
		now := s.now().UTC()
		st.SentAt = &now
		if providerID != "" {
			st.ProviderID = &providerID
		}
	}
	return st
}

func (s *Service) record(ctx context.Context, userID uuid.UUID, notice Notice, st ChannelDeliveryStatus) {
	if s.deliveries == nil || st.Status == StatusSkipped {
		return
	}
	raw, err := json.Marshal(notice)
	if err != nil {
		return
	}
	entry := &DeliveryLog{
		ID:         uuid.New(),
		UserID:     userID,
		WeekID:     notice.WeekID,
		Channel:    st.Channel,
		Status:     st.Status,
		ProviderID: st.ProviderID,
		Error:      st.ErrorMessage,
		Notice:     raw,
	}
	if err := s.deliveries.RecordDelivery(ctx, entry); err != nil {
		s.logger.Warn("Failed to record delivery", zap.Error(err))
	}
}

// ListDeliveries returns the most recent deliveries for a user
func (s *Service) ListDeliveries(ctx context.Context, userID uuid.UUID, limit int) ([]DeliveryLog, error) {
	if s.deliveries == nil {
		return []DeliveryLog{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.deliveries.ListDeliveries(ctx, userID, limit)
}

// BuildNotice renders the subject and text for a transition
func BuildNotice(change weeks.StatusChange, at time.Time) Notice {
	w := change.Week
	n := Notice{
		ProjectID: w.ProjectID,
		WeekID:    w.ID,
		WeekTitle: w.Title,
		From:      change.From,
		To:        w.Status,
		Comment:   w.RejectionComment,
		ActorID:   change.ActorID,
		ActorRole: change.ActorRole,
		At:        at,
	}

	period := fmt.Sprintf("%s to %s", w.StartDate, w.EndDate)
	switch w.Status {
	case workflows.StatusPendingApproval:
		n.Subject = fmt.Sprintf("Stage %q submitted for approval", w.Title)
	case workflows.StatusApproved:
		n.Subject = fmt.Sprintf("Stage %q approved", w.Title)
	case workflows.StatusRejected:
		n.Subject = fmt.Sprintf("Stage %q rejected", w.Title)
	case workflows.StatusDraft:
		n.Subject = fmt.Sprintf("Stage %q reopened for editing", w.Title)
	case workflows.StatusCompleted:
		n.Subject = fmt.Sprintf("Stage %q completed", w.Title)
	default:
		n.Subject = fmt.Sprintf("Stage %q is now %s", w.Title, w.Status)
	}

	n.Text = fmt.Sprintf("%s (%s).", n.Subject, period)
	if change.LeftApproved {
		n.PlanChanged = true
		n.Subject = fmt.Sprintf("Previously agreed plan for stage %q changed", w.Title)
		n.Text = fmt.Sprintf("%s (%s). The stage is now %s.", n.Subject, period, w.Status)
	}
	if w.Status == workflows.StatusRejected && w.RejectionComment != nil {
		n.Text += "\nComment: " + *w.RejectionComment
	}
	return n
}
