package models

// ContentCategory is the coarse content bucket a message falls into.
type ContentCategory string

const (
	CategoryGeneral        ContentCategory = "GENERAL"
	CategoryAcademic       ContentCategory = "ACADEMIC"
	CategoryAdministrative ContentCategory = "ADMINISTRATIVE"
	CategorySupport        ContentCategory = "SUPPORT"
)

func (c ContentCategory) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryAcademic, CategoryAdministrative, CategorySupport:
		return true
	}
	return false
}

// RiskLevel orders content risk from LOW to CRITICAL.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Rank returns the ordinal position of the risk level, LOW being 0.
// Unknown levels rank above CRITICAL so ambiguity resolves protectively.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	}
	return 4
}

// MaxRiskLevel returns the higher of two risk levels.
func MaxRiskLevel(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// EncryptionLevel selects the at-rest protection tier for message content.
type EncryptionLevel string

const (
	EncryptionStandard EncryptionLevel = "STANDARD"
	EncryptionEnhanced EncryptionLevel = "ENHANCED"
	EncryptionRecord   EncryptionLevel = "RECORD"
)

func (e EncryptionLevel) Valid() bool {
	switch e {
	case EncryptionStandard, EncryptionEnhanced, EncryptionRecord:
		return true
	}
	return false
}

// ClassificationRecord is the deterministic output of classifying one
// message. It is never mutated after creation; cache eviction just means
// it gets recomputed from the same inputs.
type ClassificationRecord struct {
	ContentCategory     ContentCategory `json:"contentCategory"`
	RiskLevel           RiskLevel       `json:"riskLevel"`
	IsEducationalRecord bool            `json:"isEducationalRecord"`
	EncryptionLevel     EncryptionLevel `json:"encryptionLevel"`
	ModerationRequired  bool            `json:"moderationRequired"`
	AuditRequired       bool            `json:"auditRequired"`
	FlaggedKeywords     []string        `json:"flaggedKeywords,omitempty"`
}
