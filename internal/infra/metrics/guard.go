package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(validationsTotal, rateLimitRefusals, chatTurnsTotal, activeConversations, sessionsEvicted)
}

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_validations_total",
			Help: "Validated messages by outcome and risk level.",
		},
		[]string{"result", "risk"},
	)

	rateLimitRefusals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_rate_limit_refusals_total",
			Help: "Messages refused by the rate limiter, per reason.",
		},
		[]string{"reason"},
	)

	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Assistant replies by outcome (ok, timeout, failure, discarded).",
		},
		[]string{"outcome"},
	)

	activeConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_conversations",
			Help: "Conversations currently held in memory.",
		},
	)

	sessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_evicted_total",
			Help: "Idle conversations evicted by the janitor.",
		},
	)
)

func IncValidation(valid bool, risk string) {
	result := "rejected"
	if valid {
		result = "accepted"
	}
	validationsTotal.WithLabelValues(result, norm(risk)).Inc()
}

func IncRateLimitRefusal(reason string) {
	rateLimitRefusals.WithLabelValues(norm(reason)).Inc()
}

func IncChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(norm(outcome)).Inc()
}

func SetActiveConversations(n int) {
	activeConversations.Set(float64(n))
}

func IncSessionsEvicted(n int) {
	sessionsEvicted.Add(float64(n))
}
