package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"audit-portal/portal-backend/pkg/workflows"
)

// Channel names
const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelTelegram  = "telegram"
	ChannelWebSocket = "websocket"
)

// Delivery statuses
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Notice is one status-transition message to deliver
type Notice struct {
	ProjectID   uuid.UUID        `json:"project_id"`
	WeekID      uuid.UUID        `json:"week_id"`
	WeekTitle   string           `json:"week_title"`
	From        workflows.Status `json:"from"`
	To          workflows.Status `json:"to"`
	Comment     *string          `json:"comment,omitempty"`
	ActorID     uuid.UUID        `json:"actor_id"`
	ActorRole   workflows.Role   `json:"actor_role"`
	PlanChanged bool             `json:"plan_changed,omitempty"`
	Subject     string           `json:"subject"`
	Text        string           `json:"text"`
	At          time.Time        `json:"at"`
}

// Recipient is where a notice goes; empty fields disable the matching channel
type Recipient struct {
	UserID           uuid.UUID
	Email            string
	Phone            string
	TelegramBotToken string
	TelegramChatID   string
}

// ChannelDeliveryStatus is the outcome of one channel for one notice
type ChannelDeliveryStatus struct {
	Channel      string     `json:"channel"`
	Status       string     `json:"status"`
	ProviderID   *string    `json:"provider_id,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// DeliveryLog records one delivery attempt
type DeliveryLog struct {
	ID         uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID     uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;index"`
	WeekID     uuid.UUID      `json:"week_id" gorm:"type:uuid;not null;index"`
	Channel    string         `json:"channel" gorm:"not null"`
	Status     string         `json:"status" gorm:"not null"`
	ProviderID *string        `json:"provider_id"`
	Error      *string        `json:"error"`
	Notice     datatypes.JSON `json:"notice" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (DeliveryLog) TableName() string { return "notification_deliveries" }
