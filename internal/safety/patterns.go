package safety

import (
	"regexp"

	"tcross-assistant/internal/domain/model"
)

// InjectionPattern is one entry of the prompt-injection blocklist. Patterns
// are matched against the lowercased raw message.
type InjectionPattern struct {
	Name    string
	Pattern *regexp.Regexp
	Risk    model.RiskLevel
}

// DefaultInjectionPatterns is ordered; the first match wins and is the one
// reported in logs.
var DefaultInjectionPatterns = []InjectionPattern{
	{"ignore_previous", regexp.MustCompile(`ignore\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions|prompts?|rules)`), model.RiskHigh},
	{"disregard_instructions", regexp.MustCompile(`(disregard|forget)\s+(all\s+)?(the\s+|your\s+)?(previous\s+|prior\s+)?(instructions|rules|prompts?)`), model.RiskHigh},
	{"ignore_previous_pt", regexp.MustCompile(`ignor[ea]r?\s+(todas\s+)?(as\s+)?(instruç(ões|oes)|regras)\s+(anteriores|acima)`), model.RiskHigh},
	{"forget_pt", regexp.MustCompile(`esque(ç|c)a\s+(todas\s+)?(as\s+)?(suas\s+)?(instruç(ões|oes)|regras)`), model.RiskHigh},
	{"role_spoofing", regexp.MustCompile(`\b(system|assistant)\s*:`), model.RiskHigh},
	{"pretend", regexp.MustCompile(`pretend\s+(you\s+are|to\s+be)`), model.RiskHigh},
	{"pretend_pt", regexp.MustCompile(`finja\s+(que\s+)?(você|voce)\s+(é|e|seja)`), model.RiskHigh},
	{"you_are_now", regexp.MustCompile(`you\s+are\s+now\b`), model.RiskHigh},
	{"you_are_now_pt", regexp.MustCompile(`(você|voce)\s+agora\s+(é|e)(\s|$)`), model.RiskHigh},
	{"template_tokens", regexp.MustCompile(`\[/?inst\]|<\|im_(start|end)\|>|<<sys>>`), model.RiskHigh},
	{"angle_brackets", regexp.MustCompile(`<{3,}|>{3,}`), model.RiskHigh},
	{"newline_flood", regexp.MustCompile(`\n{3,}`), model.RiskHigh},
}

// MatchInjection returns the first pattern matching lowered, if any.
func MatchInjection(patterns []InjectionPattern, lowered string) (InjectionPattern, bool) {
	for _, p := range patterns {
		if p.Pattern.MatchString(lowered) {
			return p, true
		}
	}
	return InjectionPattern{}, false
}
