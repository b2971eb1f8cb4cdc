package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramBusyRepliesTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from Telegram chats.",
		},
		[]string{"command"}, // "text" for free questions
	)

	telegramBusyRepliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_busy_replies_total",
			Help: "Messages turned away because the chat or the worker pool was busy.",
		},
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncTelegramBusy() {
	telegramBusyRepliesTotal.Inc()
}
