package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
)

// PolicyRepository stores the single school-hours policy row.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs a PolicyRepository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get returns the stored policy or sql.ErrNoRows when none was saved yet.
func (r *PolicyRepository) Get(ctx context.Context) (*models.AttendancePolicy, error) {
	const query = `SELECT id, start_time, end_time, grace_minutes, half_day_minutes, timezone, weekend_days, created_at, updated_at FROM school_settings WHERE id = $1`
	var policy models.AttendancePolicy
	if err := r.db.GetContext(ctx, &policy, query, models.DefaultPolicyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get attendance policy: %w", err)
	}
	return &policy, nil
}

// Save inserts or replaces the policy row.
func (r *PolicyRepository) Save(ctx context.Context, policy *models.AttendancePolicy) error {
	policy.ID = models.DefaultPolicyID
	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	const query = `INSERT INTO school_settings (id, start_time, end_time, grace_minutes, half_day_minutes, timezone, weekend_days, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, grace_minutes = EXCLUDED.grace_minutes,
half_day_minutes = EXCLUDED.half_day_minutes, timezone = EXCLUDED.timezone, weekend_days = EXCLUDED.weekend_days, updated_at = EXCLUDED.updated_at
RETURNING created_at`
	var createdAt time.Time
	err := r.db.GetContext(ctx, &createdAt, query,
		policy.ID, policy.StartTime, policy.EndTime, policy.GraceMinutes, policy.HalfDayMinutes,
		policy.Timezone, policy.WeekendDays, policy.CreatedAt, policy.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save attendance policy: %w", err)
	}
	policy.CreatedAt = createdAt
	return nil
}
