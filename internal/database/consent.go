package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campusguard/internal/models"
)

// GetConsentGrants returns all stored consent grants for a user.
func (d *Database) GetConsentGrants(ctx context.Context, userID string) ([]models.ConsentGrant, error) {
	var grants []models.ConsentGrant

	err := retryableDBOperation(ctx, func() error {
		rows, err := d.db.QueryContext(ctx, selectConsentGrantsQuery, userID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		grants = grants[:0]
		for rows.Next() {
			var grant models.ConsentGrant
			if err := rows.Scan(&grant.UserID, &grant.DataCategory, &grant.Granted); err != nil {
				return err
			}
			grants = append(grants, grant)
		}
		return rows.Err()
	}, "get consent grants")
	if err != nil {
		return nil, fmt.Errorf("failed to get consent grants: %w", err)
	}

	return grants, nil
}

// UpsertConsentGrant records a consent decision for one data category.
func (d *Database) UpsertConsentGrant(ctx context.Context, grant *models.ConsentGrant) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertConsentGrantQuery,
			grant.UserID,
			string(grant.DataCategory),
			grant.Granted,
		)
		return err
	}, "upsert consent grant")
}

// GetUserProfile returns a user's role and birthdate, or nil when unknown.
func (d *Database) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile

	err := retryableDBOperation(ctx, func() error {
		row := d.db.QueryRowContext(ctx, selectUserProfileQuery, userID)
		return row.Scan(&profile.UserID, &profile.Role, &profile.Birthdate, &profile.Enrolled)
	}, "get user profile")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	return &profile, nil
}

// UpsertUserProfile stores or updates a user profile.
func (d *Database) UpsertUserProfile(ctx context.Context, profile *models.UserProfile) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertUserProfileQuery,
			profile.UserID,
			string(profile.Role),
			profile.Birthdate,
			profile.Enrolled,
		)
		return err
	}, "upsert user profile")
}
