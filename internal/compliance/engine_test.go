package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusguard/internal/cache"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfileStore struct {
	profiles map[string]*models.UserProfile
	failing  bool
	calls    int
}

func (f *fakeProfileStore) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	f.calls++
	if f.failing {
		return nil, errors.New("store unavailable")
	}
	return f.profiles[userID], nil
}

func newTestEngine(store *fakeProfileStore) *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEngine(store, cache.New[int](64), 18, logger)
}

func profileAged(id string, role models.UserRole, years int) models.UserProfile {
	return models.UserProfile{
		UserID:    id,
		Role:      role,
		Birthdate: time.Now().UTC().AddDate(-years, -1, 0),
	}
}

func adultParticipants() models.Participants {
	return models.Participants{
		Sender:     profileAged("t1", models.RoleTeacher, 40),
		Recipients: []models.UserProfile{profileAged("p1", models.RoleParent, 38)},
	}
}

func minorParticipants() models.Participants {
	return models.Participants{
		Sender:     profileAged("t1", models.RoleTeacher, 40),
		Recipients: []models.UserProfile{profileAged("s1", models.RoleStudent, 12)},
	}
}

func TestAssess_EducationalRecordEnhancedAndLogged(t *testing.T) {
	e := newTestEngine(&fakeProfileStore{})

	assessment, err := e.Assess(context.Background(), adultParticipants(), &models.ClassificationRecord{
		IsEducationalRecord: true,
		RiskLevel:           models.RiskLow,
	})
	require.NoError(t, err)

	assert.True(t, assessment.IsEducationalRecord)
	assert.Equal(t, models.ProtectionEnhanced, assessment.ProtectionLevel)
	assert.True(t, assessment.DisclosureLoggingRequired)
	assert.False(t, assessment.MinorInvolved)
}

func TestAssess_MinorRaisesProtection(t *testing.T) {
	e := newTestEngine(&fakeProfileStore{})

	assessment, err := e.Assess(context.Background(), minorParticipants(), &models.ClassificationRecord{
		RiskLevel: models.RiskLow,
	})
	require.NoError(t, err)

	assert.True(t, assessment.MinorInvolved)
	assert.Equal(t, models.ProtectionEnhanced, assessment.ProtectionLevel)
	// Low-risk chatter with a minor is protected but not disclosure-logged.
	assert.False(t, assessment.DisclosureLoggingRequired)
}

func TestAssess_RiskyContentToMinorRequiresDisclosureLog(t *testing.T) {
	e := newTestEngine(&fakeProfileStore{})

	assessment, err := e.Assess(context.Background(), minorParticipants(), &models.ClassificationRecord{
		RiskLevel: models.RiskMedium,
	})
	require.NoError(t, err)

	assert.True(t, assessment.DisclosureLoggingRequired)
}

func TestAssess_AdultsLowRiskStaysStandard(t *testing.T) {
	e := newTestEngine(&fakeProfileStore{})

	assessment, err := e.Assess(context.Background(), adultParticipants(), &models.ClassificationRecord{
		RiskLevel: models.RiskLow,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProtectionStandard, assessment.ProtectionLevel)
	assert.False(t, assessment.DisclosureLoggingRequired)
}

func TestAssess_UnknownParticipantTreatedAsMinor(t *testing.T) {
	e := newTestEngine(&fakeProfileStore{})

	participants := models.Participants{
		Sender:     profileAged("t1", models.RoleTeacher, 40),
		Recipients: []models.UserProfile{{UserID: "mystery"}},
	}

	assessment, err := e.Assess(context.Background(), participants, &models.ClassificationRecord{
		RiskLevel: models.RiskLow,
	})
	require.NoError(t, err)
	assert.True(t, assessment.MinorInvolved)
}

func TestAssess_AgeLookupUsesStoreOnceThenCache(t *testing.T) {
	store := &fakeProfileStore{profiles: map[string]*models.UserProfile{
		"s1": {UserID: "s1", Role: models.RoleStudent, Birthdate: time.Now().UTC().AddDate(-12, 0, 0)},
	}}
	e := newTestEngine(store)
	ctx := context.Background()

	participants := models.Participants{
		Sender:     profileAged("t1", models.RoleTeacher, 40),
		Recipients: []models.UserProfile{{UserID: "s1"}},
	}

	_, err := e.Assess(ctx, participants, &models.ClassificationRecord{RiskLevel: models.RiskLow})
	require.NoError(t, err)
	_, err = e.Assess(ctx, participants, &models.ClassificationRecord{RiskLevel: models.RiskLow})
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)

	e.InvalidateUser("s1")
	_, err = e.Assess(ctx, participants, &models.ClassificationRecord{RiskLevel: models.RiskLow})
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestYearsSince(t *testing.T) {
	now := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 17, yearsSince(time.Date(2008, 9, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 18, yearsSince(time.Date(2008, 8, 29, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 0, yearsSince(now.AddDate(1, 0, 0), now))
}
