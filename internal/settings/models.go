package settings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Profile holds a user's contact and notification settings. ID is the user id.
type Profile struct {
	ID               uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Email            string    `json:"email" gorm:"not null;default:''"`
	FullName         string    `json:"full_name" gorm:"not null;default:''"`
	Phone            string    `json:"phone" gorm:"not null;default:''"`
	WhatsApp         string    `json:"whatsapp" gorm:"column:whatsapp;not null;default:''"`
	Telegram         string    `json:"telegram" gorm:"not null;default:''"`
	TelegramBotToken string    `json:"telegram_bot_token,omitempty" gorm:"not null;default:''"`
	TelegramChatID   string    `json:"telegram_chat_id,omitempty" gorm:"not null;default:''"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }

// Public strips the bot credentials for display to other users
func (p *Profile) Public() *Profile {
	out := *p
	out.TelegramBotToken = ""
	out.TelegramChatID = ""
	return &out
}

// ContactPerson is one contact at the audited company
type ContactPerson struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CompanyProfile describes the audited company of a project; one per project
type CompanyProfile struct {
	ID          uuid.UUID                          `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ProjectID   uuid.UUID                          `json:"project_id" gorm:"type:uuid;uniqueIndex;not null"`
	CompanyName string                             `json:"company_name" gorm:"not null"`
	Address     string                             `json:"address" gorm:"not null;default:''"`
	Contacts    datatypes.JSONSlice[ContactPerson] `json:"contacts" gorm:"type:jsonb;not null;default:'[]'"`
	UpdatedAt   time.Time                          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CompanyProfile) TableName() string { return "company_profiles" }

// =====================================================
// Request DTOs
// =====================================================

// UpdateProfileRequest replaces the caller's profile
type UpdateProfileRequest struct {
	FullName         string `json:"full_name"`
	Phone            string `json:"phone"`
	WhatsApp         string `json:"whatsapp"`
	Telegram         string `json:"telegram"`
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
}

// UpdateCompanyProfileRequest replaces a project's company profile
type UpdateCompanyProfileRequest struct {
	CompanyName string          `json:"company_name" binding:"required"`
	Address     string          `json:"address"`
	Contacts    []ContactPerson `json:"contacts"`
}
