package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "campusguard/internal/errors"
	"campusguard/internal/models"
	"campusguard/internal/privacy"
	"campusguard/internal/tracing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Classifier produces a classification for a message on the send path.
type Classifier interface {
	Classify(content string, participants models.Participants) *models.ClassificationRecord
}

// ConsentResolver answers whether processing is permitted for a sender.
type ConsentResolver interface {
	Resolve(ctx context.Context, userID string, categories []models.DataCategory) (models.ConsentStatus, error)
}

// ComplianceEngine derives protection level and disclosure obligations.
type ComplianceEngine interface {
	Assess(ctx context.Context, participants models.Participants, classification *models.ClassificationRecord) (*models.ComplianceAssessment, error)
}

// MessageStore persists messages and their retention schedule.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message, digest string, cls *models.ClassificationRecord) error
	CreateRetentionEntry(ctx context.Context, entry *models.RetentionScheduleEntry) error
}

// ModerationEnqueuer inserts flagged messages into the review queue.
type ModerationEnqueuer interface {
	Enqueue(ctx context.Context, messageID string, cls *models.ClassificationRecord) (*models.ModerationQueueEntry, error)
}

// Auditor accepts audit entries for eventual durable write.
type Auditor interface {
	Enqueue(entry models.AuditLogEntry) error
}

type newEntryFunc func(messageID string, eventType models.AuditEventType, payload interface{}) (models.AuditLogEntry, error)

// Pipeline orchestrates one message send end to end. Classification,
// consent, and compliance run synchronously; audit, moderation insertion,
// and retention scheduling are downstream concerns that never fail the
// send once the message itself is durable.
type Pipeline struct {
	classifier Classifier
	consent    ConsentResolver
	compliance ComplianceEngine
	store      MessageStore
	moderation ModerationEnqueuer
	auditor    Auditor
	newEntry   newEntryFunc
	logger     *logrus.Logger
	nowFn      func() time.Time

	mu       sync.RWMutex
	policies []models.RetentionPolicy
}

func NewPipeline(
	classifier Classifier,
	consent ConsentResolver,
	compliance ComplianceEngine,
	store MessageStore,
	moderation ModerationEnqueuer,
	auditor Auditor,
	newEntry func(string, models.AuditEventType, interface{}) (models.AuditLogEntry, error),
	policies []models.RetentionPolicy,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		consent:    consent,
		compliance: compliance,
		store:      store,
		moderation: moderation,
		auditor:    auditor,
		newEntry:   newEntry,
		logger:     logger,
		nowFn:      func() time.Time { return time.Now().UTC() },
		policies:   policies,
	}
}

// SetRetentionPolicies swaps the active policy set. Called by the policy
// watcher on configuration reload.
func (p *Pipeline) SetRetentionPolicies(policies []models.RetentionPolicy) {
	p.mu.Lock()
	p.policies = policies
	p.mu.Unlock()
}

// SubmitMessage is the one synchronous call the send path blocks on.
func (p *Pipeline) SubmitMessage(ctx context.Context, content string, participants models.Participants) (*models.SubmitResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content", "message content is empty")
	}
	if participants.Sender.UserID == "" {
		return nil, apperrors.NewValidationError("sender", "sender is required")
	}
	if len(participants.Recipients) == 0 {
		return nil, apperrors.NewValidationError("recipients", "at least one recipient is required")
	}

	ctx, span := tracing.StartSpan(ctx, tracing.SpanSubmitMessage)
	defer span.End()

	start := p.nowFn()
	_, clsSpan := tracing.StartSpan(ctx, tracing.SpanClassify)
	classification := p.classifier.Classify(content, participants)
	clsSpan.End()

	if err := p.checkConsent(ctx, participants.Sender, classification); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	assessment := p.assess(ctx, participants, classification)

	msg := &models.Message{
		ID:           uuid.NewString(),
		AuthorID:     participants.Sender.UserID,
		RecipientIDs: recipientIDs(participants.Recipients),
		Content:      content,
		CreatedAt:    p.nowFn(),
	}
	digest := privacy.ContentDigest(content)

	if err := p.store.SaveMessage(ctx, msg, digest, classification); err != nil {
		dbErr := apperrors.NewDatabaseError("save message", err)
		tracing.RecordError(ctx, dbErr)
		return nil, dbErr
	}

	p.recordAudit(msg, classification, assessment)
	p.enqueueModeration(ctx, msg.ID, classification)
	p.scheduleRetention(ctx, msg, classification)

	p.logger.WithFields(logrus.Fields{
		LogFieldMessageID: msg.ID,
		LogFieldUserID:    privacy.MaskUserID(msg.AuthorID),
		LogFieldCategory:  classification.ContentCategory,
		LogFieldRiskLevel: classification.RiskLevel,
		LogFieldDuration:  time.Since(start).Milliseconds(),
	}).Info("Message submitted")

	return &models.SubmitResult{
		MessageID:      msg.ID,
		Classification: classification,
	}, nil
}

// checkConsent gates the send on the sender's consent status. A lookup
// failure holds the message rather than permitting it.
func (p *Pipeline) checkConsent(ctx context.Context, sender models.UserProfile, cls *models.ClassificationRecord) error {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanResolveConsent)
	defer span.End()

	status, err := p.consent.Resolve(ctx, sender.UserID, dataCategoriesFor(cls))
	if err != nil {
		p.logger.WithError(err).WithField(LogFieldUserID, privacy.MaskUserID(sender.UserID)).
			Warn("Consent lookup failed, holding message")
		return err
	}
	if status.Permitted() {
		return nil
	}

	// Denials have no message row. Each gets its own dedupe identity so
	// the (message_id, event_type) unique index never collapses denials
	// from different users or different attempts into one stored entry.
	denialID := fmt.Sprintf("consent:%s:%d", sender.UserID, p.nowFn().UnixNano())
	if entry, buildErr := p.newEntry(denialID, models.AuditEventConsentDenied, map[string]interface{}{
		"userId":     privacy.MaskUserID(sender.UserID),
		"categories": status.DataCategories,
		"legalBasis": status.LegalBasis,
	}); buildErr == nil {
		if enqErr := p.auditor.Enqueue(entry); enqErr != nil {
			p.logger.WithError(enqErr).Warn("Failed to enqueue consent denial audit entry")
		}
	}

	return apperrors.NewConsentDeniedError(sender.UserID)
}

// assess never fails the send. If the compliance engine cannot answer,
// the message is treated at the most protective tier.
func (p *Pipeline) assess(ctx context.Context, participants models.Participants, cls *models.ClassificationRecord) *models.ComplianceAssessment {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanAssess)
	defer span.End()

	assessment, err := p.compliance.Assess(ctx, participants, cls)
	if err != nil {
		p.logger.WithError(err).Warn("Compliance assessment failed, applying enhanced protection")
		return &models.ComplianceAssessment{
			IsEducationalRecord:       cls.IsEducationalRecord,
			ProtectionLevel:           models.ProtectionEnhanced,
			DisclosureLoggingRequired: true,
			MinorInvolved:             true,
		}
	}
	return assessment
}

func (p *Pipeline) recordAudit(msg *models.Message, cls *models.ClassificationRecord, assessment *models.ComplianceAssessment) {
	if cls.AuditRequired {
		p.enqueueAudit(msg.ID, models.AuditEventMessageClassified, map[string]interface{}{
			"contentCategory":     cls.ContentCategory,
			"riskLevel":           cls.RiskLevel,
			"isEducationalRecord": cls.IsEducationalRecord,
			"encryptionLevel":     cls.EncryptionLevel,
			"flaggedCount":        privacy.SummarizeKeywords(cls.FlaggedKeywords),
		})
	}
	if assessment.DisclosureLoggingRequired {
		p.enqueueAudit(msg.ID, models.AuditEventDisclosureLogged, map[string]interface{}{
			"authorId":        privacy.MaskUserID(msg.AuthorID),
			"recipientIds":    privacy.MaskUserIDs(msg.RecipientIDs),
			"protectionLevel": assessment.ProtectionLevel,
			"minorInvolved":   assessment.MinorInvolved,
		})
	}
}

func (p *Pipeline) enqueueAudit(messageID string, eventType models.AuditEventType, payload map[string]interface{}) {
	entry, err := p.newEntry(messageID, eventType, payload)
	if err != nil {
		p.logger.WithError(err).WithField(LogFieldMessageID, messageID).Error("Failed to build audit entry")
		return
	}
	if err := p.auditor.Enqueue(entry); err != nil {
		p.logger.WithError(err).WithField(LogFieldMessageID, messageID).Error("Failed to enqueue audit entry")
	}
}

func (p *Pipeline) enqueueModeration(ctx context.Context, messageID string, cls *models.ClassificationRecord) {
	if !cls.ModerationRequired {
		return
	}
	if _, err := p.moderation.Enqueue(ctx, messageID, cls); err != nil {
		p.logger.WithError(err).WithField(LogFieldMessageID, messageID).Error("Failed to enqueue message for moderation")
	}
}

// scheduleRetention creates the single retention entry every message gets.
// The insert is idempotent on message id, so a retried submit cannot
// produce a second schedule.
func (p *Pipeline) scheduleRetention(ctx context.Context, msg *models.Message, cls *models.ClassificationRecord) {
	policy := p.policyFor(cls)
	if policy == nil {
		p.logger.WithFields(logrus.Fields{
			LogFieldMessageID: msg.ID,
			LogFieldCategory:  cls.ContentCategory,
		}).Error("No retention policy matches message category")
		return
	}

	entry := &models.RetentionScheduleEntry{
		MessageID: msg.ID,
		PolicyID:  policy.ID,
		ExpiresAt: msg.CreatedAt.AddDate(0, 0, policy.Days),
		Action:    policy.Action,
	}
	if err := p.store.CreateRetentionEntry(ctx, entry); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldMessageID: msg.ID,
			LogFieldPolicyID:  policy.ID,
		}).Error("Failed to create retention entry")
	}
}

// policyFor picks the policy matching the message's category, falling
// back to the GENERAL policy. Educational records must never be deleted,
// so they take the first ARCHIVE policy when their category policy would
// delete.
func (p *Pipeline) policyFor(cls *models.ClassificationRecord) *models.RetentionPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var match, general, archive *models.RetentionPolicy
	for i := range p.policies {
		policy := &p.policies[i]
		if policy.Category == cls.ContentCategory && match == nil {
			match = policy
		}
		if policy.Category == models.CategoryGeneral && general == nil {
			general = policy
		}
		if policy.Action == models.RetentionArchive && archive == nil {
			archive = policy
		}
	}

	if cls.IsEducationalRecord {
		if match != nil && match.Action == models.RetentionArchive {
			return match
		}
		return archive
	}
	if match != nil {
		return match
	}
	return general
}

func dataCategoriesFor(cls *models.ClassificationRecord) []models.DataCategory {
	categories := []models.DataCategory{models.DataCategoryMessageContent}
	if cls.IsEducationalRecord {
		categories = append(categories, models.DataCategoryEducationalRecord)
	}
	if cls.RiskLevel != models.RiskLow {
		categories = append(categories, models.DataCategoryBehavioral)
	}
	return categories
}

func recipientIDs(recipients []models.UserProfile) []string {
	ids := make([]string, len(recipients))
	for i, r := range recipients {
		ids[i] = r.UserID
	}
	return ids
}
