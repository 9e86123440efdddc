package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"campusguard/internal/cache"
	"campusguard/internal/metrics"
	"campusguard/internal/models"

	"github.com/sirupsen/logrus"
)

// Classifier maps (content, participants) to a ClassificationRecord. It is
// deterministic and side-effect free for identical inputs, which is what
// makes the memoization sound: a cache hit and a recomputation are
// indistinguishable to callers.
type Classifier struct {
	mu       sync.RWMutex
	matcher  *matcher
	cache    *cache.Cache[*models.ClassificationRecord]
	registry *metrics.Registry
	logger   *logrus.Logger
}

// New compiles the lexicon into a matcher. An empty lexicon is a
// configuration error surfaced at startup, never per message.
func New(lexicon models.LexiconConfig, c *cache.Cache[*models.ClassificationRecord], registry *metrics.Registry, logger *logrus.Logger) *Classifier {
	return &Classifier{
		matcher:  compileMatcher(lexicon),
		cache:    c,
		registry: registry,
		logger:   logger,
	}
}

// ReloadLexicon swaps in a recompiled matcher and flushes the memoization
// cache. Called by the policy watcher on config change.
func (c *Classifier) ReloadLexicon(lexicon models.LexiconConfig) {
	compiled := compileMatcher(lexicon)

	c.mu.Lock()
	c.matcher = compiled
	c.mu.Unlock()

	c.cache.Flush()
	c.logger.Info("Classifier lexicon reloaded")
}

// Classify produces the classification record for one message. It never
// fails for well-formed input: unknown content defaults to GENERAL/LOW
// and not-educational, while risk ambiguity resolves upward with audit
// forced on.
func (c *Classifier) Classify(content string, participants models.Participants) *models.ClassificationRecord {
	key := cacheKey(content, participants)
	if record, ok := c.cache.Get(key); ok {
		c.registry.IncrementCounter(metrics.MetricClassificationCacheHits, nil, "Classification served from memoization cache")
		return record
	}

	start := time.Now()
	record := c.classify(content, participants)
	c.registry.RecordTimer(metrics.MetricClassificationDuration, time.Since(start), nil)
	c.cache.Set(key, record)
	return record
}

func (c *Classifier) classify(content string, participants models.Participants) *models.ClassificationRecord {
	c.mu.RLock()
	m := c.matcher
	c.mu.RUnlock()

	tokens := tokenize(content)
	result := m.match(tokens)

	record := &models.ClassificationRecord{
		ContentCategory: dominantCategory(result.categoryHits),
		RiskLevel:       models.RiskLow,
		EncryptionLevel: models.EncryptionStandard,
	}

	riskLevels := make(map[models.RiskLevel]bool)
	for term, level := range result.riskHits {
		record.FlaggedKeywords = append(record.FlaggedKeywords, term)
		record.RiskLevel = models.MaxRiskLevel(record.RiskLevel, level)
		riskLevels[level] = true
	}
	sort.Strings(record.FlaggedKeywords)

	ambiguousRisk := len(riskLevels) > 1

	// Grade and score mentions only become an educational record when a
	// teacher or staff member addresses a student; the same words between
	// two students are just conversation.
	if result.eduHit && isInstructionalSender(participants.Sender.Role) && hasStudentRecipient(participants.Recipients) {
		record.IsEducationalRecord = true
		record.ContentCategory = models.CategoryAcademic
		record.EncryptionLevel = models.EncryptionRecord
	}

	if !record.IsEducationalRecord && record.RiskLevel.Rank() >= models.RiskMedium.Rank() {
		record.EncryptionLevel = models.EncryptionEnhanced
	}

	record.ModerationRequired = record.RiskLevel.Rank() >= models.RiskHigh.Rank()
	record.AuditRequired = record.IsEducationalRecord ||
		record.RiskLevel != models.RiskLow ||
		ambiguousRisk

	return record
}

// dominantCategory picks the category with the most lexicon hits. Ties
// break in a fixed order so classification stays deterministic; no hits
// means GENERAL.
func dominantCategory(hits map[models.ContentCategory]int) models.ContentCategory {
	best := models.CategoryGeneral
	bestCount := 0
	for _, category := range []models.ContentCategory{
		models.CategoryAcademic,
		models.CategoryAdministrative,
		models.CategorySupport,
	} {
		if hits[category] > bestCount {
			best = category
			bestCount = hits[category]
		}
	}
	return best
}

func isInstructionalSender(role models.UserRole) bool {
	switch role {
	case models.RoleTeacher, models.RoleStaff, models.RoleAdmin:
		return true
	}
	return false
}

func hasStudentRecipient(recipients []models.UserProfile) bool {
	for _, r := range recipients {
		if r.Role == models.RoleStudent {
			return true
		}
	}
	return false
}

// cacheKey hashes the normalized content together with the participant
// roles. Two sends with identical text and role shapes share one cache
// slot regardless of the specific users involved.
func cacheKey(content string, participants models.Participants) string {
	roles := make([]string, 0, len(participants.Recipients))
	for _, r := range participants.Recipients {
		roles = append(roles, string(r.Role))
	}
	sort.Strings(roles)

	h := sha256.New()
	h.Write([]byte(strings.Join(tokenize(content), " ")))
	h.Write([]byte{0})
	h.Write([]byte(participants.Sender.Role))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(roles, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
