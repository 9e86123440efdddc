package consent

import (
	"context"
	"sort"
	"strings"

	"campusguard/internal/cache"
	apperrors "campusguard/internal/errors"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the durable store the resolver needs.
type Store interface {
	GetConsentGrants(ctx context.Context, userID string) ([]models.ConsentGrant, error)
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Resolver determines the legal basis for processing a user's data across
// a set of data categories. Results are cached per (user, sorted
// categories); consent-change events invalidate through InvalidateUser.
type Resolver struct {
	store  Store
	cache  *cache.Cache[models.ConsentStatus]
	logger *logrus.Logger
}

func NewResolver(store Store, c *cache.Cache[models.ConsentStatus], logger *logrus.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  c,
		logger: logger,
	}
}

// Resolve returns the consent status for userID over the given categories.
// A store failure surfaces as ConsentLookupFailed; callers must treat that
// as consent-required and hold the message rather than permit it.
func (r *Resolver) Resolve(ctx context.Context, userID string, categories []models.DataCategory) (models.ConsentStatus, error) {
	sorted := make([]string, len(categories))
	for i, c := range categories {
		sorted[i] = string(c)
	}
	sort.Strings(sorted)
	key := userID + "|" + strings.Join(sorted, ",")

	if status, ok := r.cache.Get(key); ok {
		return status, nil
	}

	status, err := r.resolve(ctx, userID, categories)
	if err != nil {
		return models.ConsentStatus{}, err
	}

	r.cache.Set(key, status)
	return status, nil
}

func (r *Resolver) resolve(ctx context.Context, userID string, categories []models.DataCategory) (models.ConsentStatus, error) {
	profile, err := r.store.GetUserProfile(ctx, userID)
	if err != nil {
		return models.ConsentStatus{}, apperrors.NewConsentLookupError(userID, err)
	}

	status := models.ConsentStatus{
		UserID:         userID,
		DataCategories: categories,
	}

	// An enrolled adult's relationship with the institution is itself the
	// legal basis; no explicit consent grant is needed.
	if profile != nil && profile.Enrolled && isAdultRelationship(profile.Role) {
		status.LegalBasis = models.BasisLegitimateInterest
		status.ConsentRequired = false
		return status, nil
	}

	grants, err := r.store.GetConsentGrants(ctx, userID)
	if err != nil {
		return models.ConsentStatus{}, apperrors.NewConsentLookupError(userID, err)
	}

	granted := make(map[models.DataCategory]bool, len(grants))
	for _, grant := range grants {
		granted[grant.DataCategory] = grant.Granted
	}

	status.LegalBasis = models.BasisConsent
	status.ConsentRequired = true
	status.ConsentGranted = true
	for _, category := range categories {
		if !granted[category] {
			status.ConsentGranted = false
			break
		}
	}

	return status, nil
}

// InvalidateUser drops every cached tuple for one user. Wired to external
// consent-change events.
func (r *Resolver) InvalidateUser(userID string) {
	r.cache.InvalidatePrefix(userID + "|")
	r.logger.WithField("user_id", userID).Debug("Consent cache invalidated")
}

// isAdultRelationship reports whether the role implies an institutional
// relationship with an adult counterparty (staff employment, parental
// agreement signed at enrollment).
func isAdultRelationship(role models.UserRole) bool {
	switch role {
	case models.RoleTeacher, models.RoleStaff, models.RoleAdmin, models.RoleParent:
		return true
	}
	return false
}
