package usecase

import (
	"errors"

	"tcross-assistant/internal/domain"
	"tcross-assistant/internal/safety"
)

// Explain returns the localized text a chat front end shows for err. known
// is false for unexpected errors, which callers should log.
func Explain(err error, text safety.Localizer) (msg string, known bool) {
	switch {
	case errors.Is(err, domain.ErrValidationRejected), errors.Is(err, domain.ErrRateLimitExceeded):
		// refusals carry their own localized reason
		return err.Error(), true
	case errors.Is(err, domain.ErrNoActiveSession):
		return text.T("chat.no_session"), true
	case errors.Is(err, domain.ErrNoPendingMessage):
		return text.T("chat.no_pending"), true
	case errors.Is(err, domain.ErrProviderTimeout):
		return text.T("chat.provider_timeout"), true
	case errors.Is(err, domain.ErrProviderFailure):
		return text.T("chat.provider_failure"), true
	default:
		return text.T("bot.error"), false
	}
}
