package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/projects"
	"audit-portal/portal-backend/pkg/apperr"
	"audit-portal/portal-backend/pkg/security"
)

var (
	errForbiddenCompany    = apperr.Forbidden("only the project auditor can edit the company profile")
	errCompanyNameRequired = apperr.Validation("company_name is required")
)

// ProjectLookup resolves the project a company profile belongs to
type ProjectLookup interface {
	GetProject(ctx context.Context, id uuid.UUID) (*projects.Project, error)
}

// Service provides profile business logic
type Service struct {
	repo     Repository
	projects ProjectLookup
	box      *security.Box
	logger   *zap.Logger
}

// NewService creates a new settings service. box may be nil, in which case
// bot tokens are stored as given.
func NewService(repo Repository, projectLookup ProjectLookup, box *security.Box, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		projects: projectLookup,
		box:      box,
		logger:   logger,
	}
}

// GetProfile returns the caller's own profile with the bot token opened.
// A user without a stored profile gets an empty one.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID, email string) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return &Profile{ID: userID, Email: email}, nil
	}
	if err != nil {
		return nil, err
	}
	if profile.TelegramBotToken, err = s.box.Open(profile.TelegramBotToken); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetPublicProfile returns another user's contact details without credentials
func (s *Service) GetPublicProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.Public(), nil
}

// ContactProfile returns a profile for outbound notices, bot token opened.
// It returns ErrProfileNotFound when the user never saved one.
func (s *Service) ContactProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.TelegramBotToken, err = s.box.Open(profile.TelegramBotToken); err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateProfile upserts the caller's profile; a user can only write their own
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, email string, req *UpdateProfileRequest) (*Profile, error) {
	token := strings.TrimSpace(req.TelegramBotToken)
	sealed, err := s.box.Seal(token)
	if err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:               userID,
		Email:            email,
		FullName:         strings.TrimSpace(req.FullName),
		Phone:            strings.TrimSpace(req.Phone),
		WhatsApp:         strings.TrimSpace(req.WhatsApp),
		Telegram:         strings.TrimSpace(req.Telegram),
		TelegramBotToken: sealed,
		TelegramChatID:   strings.TrimSpace(req.TelegramChatID),
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info("Profile updated",
		zap.String("user_id", userID.String()),
		zap.Bool("telegram_bot", token != ""),
	)
	profile.TelegramBotToken = token
	return profile, nil
}

// GetCompanyProfile returns the project's company profile, or a default
// seeded from the project name when none was saved.
func (s *Service) GetCompanyProfile(ctx context.Context, projectID uuid.UUID) (*CompanyProfile, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.GetCompanyProfile(ctx, projectID)
	if errors.Is(err, ErrCompanyProfileNotFound) {
		return &CompanyProfile{
			ProjectID:   projectID,
			CompanyName: project.Name,
			Contacts:    []ContactPerson{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateCompanyProfile upserts the company profile; auditor only
func (s *Service) UpdateCompanyProfile(ctx context.Context, userID, projectID uuid.UUID, req *UpdateCompanyProfileRequest) (*CompanyProfile, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsOwner(userID) {
		return nil, errForbiddenCompany
	}

	name := strings.TrimSpace(req.CompanyName)
	if name == "" {
		return nil, errCompanyNameRequired
	}

	contacts := make([]ContactPerson, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		contacts = append(contacts, c)
	}

	profile := &CompanyProfile{
		ID:          uuid.New(),
		ProjectID:   projectID,
		CompanyName: name,
		Address:     strings.TrimSpace(req.Address),
		Contacts:    contacts,
	}
	if err := s.repo.UpsertCompanyProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
