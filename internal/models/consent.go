package models

// DataCategory names a class of personal data a message may touch.
type DataCategory string

const (
	DataCategoryMessageContent    DataCategory = "MESSAGE_CONTENT"
	DataCategoryEducationalRecord DataCategory = "EDUCATIONAL_RECORD"
	DataCategoryBehavioral        DataCategory = "BEHAVIORAL"
)

// LegalBasis is the ground on which processing is permitted.
type LegalBasis string

const (
	BasisConsent            LegalBasis = "CONSENT"
	BasisLegitimateInterest LegalBasis = "LEGITIMATE_INTEREST"
	BasisLegalObligation    LegalBasis = "LEGAL_OBLIGATION"
	BasisVitalInterest      LegalBasis = "VITAL_INTEREST"
)

func (b LegalBasis) Valid() bool {
	switch b {
	case BasisConsent, BasisLegitimateInterest, BasisLegalObligation, BasisVitalInterest:
		return true
	}
	return false
}

// ConsentStatus is the resolved legal position for one user and a set of
// data categories.
type ConsentStatus struct {
	UserID          string         `json:"userId"`
	DataCategories  []DataCategory `json:"dataCategories"`
	LegalBasis      LegalBasis     `json:"legalBasis"`
	ConsentRequired bool           `json:"consentRequired"`
	ConsentGranted  bool           `json:"consentGranted"`
}

// Permitted reports whether processing may proceed under this status.
func (s ConsentStatus) Permitted() bool {
	return !s.ConsentRequired || s.ConsentGranted
}

// ConsentGrant is a stored consent record as the durable store returns it.
type ConsentGrant struct {
	UserID       string       `db:"user_id"`
	DataCategory DataCategory `db:"data_category"`
	Granted      bool         `db:"granted"`
}

// ProtectionLevel is the storage/handling tier a compliance assessment
// assigns.
type ProtectionLevel string

const (
	ProtectionStandard ProtectionLevel = "standard"
	ProtectionEnhanced ProtectionLevel = "enhanced"
)

// ComplianceAssessment is a pure derivation over the classification and
// the participants' ages and roles.
type ComplianceAssessment struct {
	IsEducationalRecord       bool            `json:"isEducationalRecord"`
	ProtectionLevel           ProtectionLevel `json:"protectionLevel"`
	DisclosureLoggingRequired bool            `json:"disclosureLoggingRequired"`
	MinorInvolved             bool            `json:"minorInvolved"`
}
