package model

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidationResult is produced fresh for every validation call.
type ValidationResult struct {
	IsValid          bool
	SanitizedMessage string
	RiskLevel        RiskLevel
	Warnings         []string
}

type RateReason string

const (
	RateReasonNone      RateReason = ""
	RateReasonBlocked   RateReason = "blocked"
	RateReasonPerMinute RateReason = "per_minute"
	RateReasonPerHour   RateReason = "per_hour"
)

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed bool
	Reason  RateReason
}

func Allow() RateDecision { return RateDecision{Allowed: true} }

func Deny(reason RateReason) RateDecision { return RateDecision{Reason: reason} }
