package compliance

import (
	"context"
	"sync"
	"time"

	"campusguard/internal/cache"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
)

// ProfileStore is the slice of the durable store the engine needs.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Engine derives the protection level and disclosure-logging requirement
// for a classified message. It holds no state of its own beyond the age
// cache: the derivation is pure over (classification, participant ages,
// roles).
type Engine struct {
	store    ProfileStore
	ageCache *cache.Cache[int]
	logger   *logrus.Logger

	mu       sync.RWMutex
	adultAge int
}

func NewEngine(store ProfileStore, ageCache *cache.Cache[int], adultAge int, logger *logrus.Logger) *Engine {
	return &Engine{
		store:    store,
		ageCache: ageCache,
		logger:   logger,
		adultAge: adultAge,
	}
}

// SetAdultAge updates the age-of-majority threshold on policy reload. The
// age cache survives the reload since birthdates did not change.
func (e *Engine) SetAdultAge(adultAge int) {
	e.mu.Lock()
	e.adultAge = adultAge
	e.mu.Unlock()
}

// InvalidateUser drops a user's cached age. Wired to profile-edit events;
// birthdates change only on correction.
func (e *Engine) InvalidateUser(userID string) {
	e.ageCache.Invalidate(userID)
}

// Assess combines the classification with participant ages and roles.
// Minor participation or educational-record content raises the protection
// level; disclosure logging follows educational records and risky content
// sent to minors.
func (e *Engine) Assess(ctx context.Context, participants models.Participants, classification *models.ClassificationRecord) (*models.ComplianceAssessment, error) {
	e.mu.RLock()
	adultAge := e.adultAge
	e.mu.RUnlock()

	minorInvolved, err := e.anyMinor(ctx, participants, adultAge)
	if err != nil {
		return nil, err
	}

	assessment := &models.ComplianceAssessment{
		IsEducationalRecord: classification.IsEducationalRecord,
		ProtectionLevel:     models.ProtectionStandard,
		MinorInvolved:       minorInvolved,
	}

	if classification.IsEducationalRecord || minorInvolved {
		assessment.ProtectionLevel = models.ProtectionEnhanced
	}

	if classification.IsEducationalRecord {
		assessment.DisclosureLoggingRequired = true
	}
	if minorInvolved && classification.RiskLevel.Rank() >= models.RiskMedium.Rank() {
		assessment.DisclosureLoggingRequired = true
	}

	return assessment, nil
}

func (e *Engine) anyMinor(ctx context.Context, participants models.Participants, adultAge int) (bool, error) {
	all := append([]models.UserProfile{participants.Sender}, participants.Recipients...)
	for _, profile := range all {
		age, err := e.ageOf(ctx, profile)
		if err != nil {
			return false, err
		}
		if age < adultAge {
			return true, nil
		}
	}
	return false, nil
}

// ageOf returns the participant's age in whole years, preferring the cache
// and falling back to the profile store. An unknown user is treated as a
// minor: the protective default for the same reason ambiguous risk audits.
func (e *Engine) ageOf(ctx context.Context, profile models.UserProfile) (int, error) {
	if age, ok := e.ageCache.Get(profile.UserID); ok {
		return age, nil
	}

	birthdate := profile.Birthdate
	if birthdate.IsZero() {
		stored, err := e.store.GetUserProfile(ctx, profile.UserID)
		if err != nil {
			return 0, err
		}
		if stored == nil {
			e.logger.WithField("user_id", profile.UserID).Warn("Unknown participant, treating as minor")
			return 0, nil
		}
		birthdate = stored.Birthdate
	}

	age := yearsSince(birthdate, time.Now().UTC())
	e.ageCache.Set(profile.UserID, age)
	return age, nil
}

func yearsSince(birthdate, now time.Time) int {
	years := now.Year() - birthdate.Year()
	anniversary := birthdate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
