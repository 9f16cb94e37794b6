package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"audit-portal/portal-backend/pkg/apperr"
)

var (
	ErrProfileNotFound        = apperr.NotFound("profile not found")
	ErrCompanyProfileNotFound = apperr.NotFound("company profile not found")
)

// Repository defines the interface for settings data access
type Repository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpsertProfile(ctx context.Context, profile *Profile) error

	GetCompanyProfile(ctx context.Context, projectID uuid.UUID) (*CompanyProfile, error)
	// UpsertCompanyProfile writes the profile keyed by project id
	UpsertCompanyProfile(ctx context.Context, profile *CompanyProfile) error
}

// GormRepository implements Repository on gorm
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new settings repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var profile Profile
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (r *GormRepository) UpsertProfile(ctx context.Context, profile *Profile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (r *GormRepository) GetCompanyProfile(ctx context.Context, projectID uuid.UUID) (*CompanyProfile, error) {
	var profile CompanyProfile
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyProfileNotFound
		}
		return nil, fmt.Errorf("failed to get company profile: %w", err)
	}
	return &profile, nil
}

func (r *GormRepository) UpsertCompanyProfile(ctx context.Context, profile *CompanyProfile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"company_name", "address", "contacts", "updated_at"}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to save company profile: %w", err)
	}
	return nil
}
