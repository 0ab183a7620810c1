package notify

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"typerush/internal/config"
)

// AdminChatMiddleware ignores updates from chats that are not configured
// notification recipients.
func AdminChatMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil {
				return nil
			}
			if !cfg.IsAdminChat(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-admin chat")
				return nil
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs every incoming command.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug()
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID)
			}
			ev.Str("text", c.Text()).Msg("Received bot command")
			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from panics in bot handlers.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Recovered from panic in bot handler")
					err = nil
				}
			}()
			return next(c)
		}
	}
}
