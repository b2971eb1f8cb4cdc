package safety

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"tcross-assistant/internal/domain/model"
)

const (
	MaxMessageLength   = 500
	MaxWords           = 100
	MaxLines           = 10
	MaxSuspiciousChars = 5

	suspiciousChars = `<>{}[]\|^`
)

// Localizer renders user-facing text. *i18n.Translator satisfies it.
type Localizer interface {
	T(key string, args ...interface{}) string
}

var (
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	newlineRuns   = regexp.MustCompile(`\n{3,}`)
	spaceRuns     = regexp.MustCompile(`\s{4,}`)
	specialRepeat = regexp2.MustCompile(`([<>{}\[\]\\|^])\1{2,}`, regexp2.None)
)

// Validator checks and sanitizes candidate chat messages. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	patterns []InjectionPattern
	tr       Localizer
}

func NewValidator(tr Localizer) *Validator {
	return &Validator{patterns: DefaultInjectionPatterns, tr: tr}
}

// WithPatterns returns a copy of v matching patterns instead of the defaults.
func (v *Validator) WithPatterns(patterns []InjectionPattern) *Validator {
	cp := *v
	cp.patterns = patterns
	return &cp
}

func (v *Validator) ValidateAndSanitize(message string) model.ValidationResult {
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return model.ValidationResult{
			RiskLevel: model.RiskHigh,
			Warnings:  []string{v.tr.T("validation.too_long", MaxMessageLength)},
		}
	}

	if _, hit := MatchInjection(v.patterns, strings.ToLower(message)); hit {
		return model.ValidationResult{
			RiskLevel: model.RiskHigh,
			Warnings:  []string{v.tr.T("validation.injection")},
		}
	}

	clean := Sanitize(message)
	if clean == "" {
		return model.ValidationResult{
			RiskLevel: model.RiskLow,
			Warnings:  []string{v.tr.T("validation.empty")},
		}
	}

	res := model.ValidationResult{
		IsValid:          true,
		SanitizedMessage: clean,
		RiskLevel:        model.RiskLow,
	}
	if n := len(strings.Fields(clean)); n > MaxWords {
		res.Warnings = append(res.Warnings, v.tr.T("validation.many_words", n))
	}
	if n := strings.Count(clean, "\n") + 1; n > MaxLines {
		res.Warnings = append(res.Warnings, v.tr.T("validation.many_lines", n))
	}
	if n := CountSuspicious(clean); n > MaxSuspiciousChars {
		res.Warnings = append(res.Warnings, v.tr.T("validation.suspicious_chars", n))
	}
	if len(res.Warnings) > 0 {
		res.RiskLevel = model.RiskMedium
	}
	return res
}

// Sanitize normalizes a message without changing its meaning. Invalid UTF-8
// and control characters go first so they cannot split a run that a later
// step would collapse; the result is a fixed point of Sanitize.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = controlChars.ReplaceAllString(s, "")
	if out, err := specialRepeat.Replace(s, "$1$1", -1, -1); err == nil {
		s = out
	}
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	s = spaceRuns.ReplaceAllString(s, "   ")
	return strings.TrimSpace(s)
}

func CountSuspicious(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(suspiciousChars, r) {
			n++
		}
	}
	return n
}
