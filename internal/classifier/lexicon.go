package classifier

import (
	"strings"
	"unicode"

	"campusguard/internal/models"
)

// matcher is the precompiled form of a policy lexicon. Lookup cost depends
// on the message's token count, not the lexicon size, which keeps
// classification bounded on the synchronous send path.
type matcher struct {
	categoryTerms map[string]models.ContentCategory
	eduTerms      map[string]bool
	riskTerms     map[string]models.RiskLevel

	// Multi-word lexicon entries, indexed by their first token.
	categoryPhrases map[string][]phrase
	eduPhrases      map[string][]phrase
	riskPhrases     map[string][]phrase

	maxPhraseLen int
}

type phrase struct {
	tokens   []string
	joined   string
	category models.ContentCategory
	risk     models.RiskLevel
	edu      bool
}

func compileMatcher(lex models.LexiconConfig) *matcher {
	m := &matcher{
		categoryTerms:   make(map[string]models.ContentCategory),
		eduTerms:        make(map[string]bool),
		riskTerms:       make(map[string]models.RiskLevel),
		categoryPhrases: make(map[string][]phrase),
		eduPhrases:      make(map[string][]phrase),
		riskPhrases:     make(map[string][]phrase),
		maxPhraseLen:    1,
	}

	m.addCategory(lex.Academic, models.CategoryAcademic)
	m.addCategory(lex.Administrative, models.CategoryAdministrative)
	m.addCategory(lex.Support, models.CategorySupport)
	m.addEducational(lex.EducationalRecord)
	m.addRisk(lex.RiskMedium, models.RiskMedium)
	m.addRisk(lex.RiskHigh, models.RiskHigh)
	m.addRisk(lex.RiskCritical, models.RiskCritical)

	return m
}

func (m *matcher) addCategory(terms []string, category models.ContentCategory) {
	for _, term := range terms {
		tokens := tokenize(term)
		switch len(tokens) {
		case 0:
		case 1:
			m.categoryTerms[tokens[0]] = category
		default:
			m.notePhraseLen(len(tokens))
			m.categoryPhrases[tokens[0]] = append(m.categoryPhrases[tokens[0]],
				phrase{tokens: tokens, joined: strings.Join(tokens, " "), category: category})
		}
	}
}

func (m *matcher) addEducational(terms []string) {
	for _, term := range terms {
		tokens := tokenize(term)
		switch len(tokens) {
		case 0:
		case 1:
			m.eduTerms[tokens[0]] = true
		default:
			m.notePhraseLen(len(tokens))
			m.eduPhrases[tokens[0]] = append(m.eduPhrases[tokens[0]],
				phrase{tokens: tokens, joined: strings.Join(tokens, " "), edu: true})
		}
	}
}

func (m *matcher) addRisk(terms []string, level models.RiskLevel) {
	for _, term := range terms {
		tokens := tokenize(term)
		switch len(tokens) {
		case 0:
		case 1:
			// A term listed at two levels keeps the higher one.
			m.riskTerms[tokens[0]] = models.MaxRiskLevel(m.riskTerms[tokens[0]], level)
		default:
			m.notePhraseLen(len(tokens))
			m.riskPhrases[tokens[0]] = append(m.riskPhrases[tokens[0]],
				phrase{tokens: tokens, joined: strings.Join(tokens, " "), risk: level})
		}
	}
}

func (m *matcher) notePhraseLen(n int) {
	if n > m.maxPhraseLen {
		m.maxPhraseLen = n
	}
}

// matchResult aggregates everything the matcher found in one pass.
type matchResult struct {
	categoryHits map[models.ContentCategory]int
	eduHit       bool
	riskHits     map[string]models.RiskLevel
}

func (m *matcher) match(tokens []string) matchResult {
	result := matchResult{
		categoryHits: make(map[models.ContentCategory]int),
		riskHits:     make(map[string]models.RiskLevel),
	}

	for i, token := range tokens {
		if category, ok := m.categoryTerms[token]; ok {
			result.categoryHits[category]++
		}
		if m.eduTerms[token] {
			result.eduHit = true
		}
		if level, ok := m.riskTerms[token]; ok {
			result.riskHits[token] = models.MaxRiskLevel(result.riskHits[token], level)
		}

		for _, p := range m.categoryPhrases[token] {
			if phraseAt(tokens, i, p.tokens) {
				result.categoryHits[p.category]++
			}
		}
		for _, p := range m.eduPhrases[token] {
			if phraseAt(tokens, i, p.tokens) {
				result.eduHit = true
			}
		}
		for _, p := range m.riskPhrases[token] {
			if phraseAt(tokens, i, p.tokens) {
				result.riskHits[p.joined] = models.MaxRiskLevel(result.riskHits[p.joined], p.risk)
			}
		}
	}

	return result
}

func phraseAt(tokens []string, start int, want []string) bool {
	if start+len(want) > len(tokens) {
		return false
	}
	for j, w := range want {
		if tokens[start+j] != w {
			return false
		}
	}
	return true
}

// tokenize lowercases and splits on anything that is not a letter or
// digit. "Bullied," and "bullied" normalize to the same token.
func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
