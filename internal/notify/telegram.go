package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"typerush/internal/config"
	"typerush/internal/model"
)

// Stats is the read side the bot commands need.
type Stats interface {
	Top(ctx context.Context, limit int, userID string) ([]model.LeaderboardEntry, error)
	TopSpender(ctx context.Context) (*model.TopSpender, error)
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends payment notifications to the configured admin chats and
// answers /top and /spender there.
type Telegram struct {
	bot    *tele.Bot
	send   sender
	cfg    *config.Config
	stats  Stats
	queue  chan string
	closed chan struct{}
}

// NewTelegram creates the bot. Returns an error when no token is configured.
func NewTelegram(cfg *config.Config, stats Stats) (*Telegram, error) {
	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	t := newTelegram(b, cfg, stats)
	t.bot = b
	t.registerMiddleware()
	t.registerHandlers()
	return t, nil
}

func newTelegram(s sender, cfg *config.Config, stats Stats) *Telegram {
	return &Telegram{
		send:   s,
		cfg:    cfg,
		stats:  stats,
		queue:  make(chan string, 64),
		closed: make(chan struct{}),
	}
}

func (t *Telegram) registerMiddleware() {
	t.bot.Use(RecoveryMiddleware())
	t.bot.Use(AdminChatMiddleware(t.cfg))
	t.bot.Use(LoggingMiddleware())
}

func (t *Telegram) registerHandlers() {
	t.bot.Handle("/top", t.handleTop)
	t.bot.Handle("/spender", t.handleSpender)
}

// PaymentReceived queues a message for every admin chat. A full queue drops
// the message.
func (t *Telegram) PaymentReceived(_ context.Context, ev PaymentEvent) {
	select {
	case t.queue <- FormatPayment(ev):
	default:
		log.Warn().Str("user_id", ev.UserID).Msg("Notification queue full, dropping payment message")
	}
}

// Run delivers queued messages and polls for commands until ctx is done.
func (t *Telegram) Run(ctx context.Context) error {
	if t.bot != nil {
		log.Info().Msg("Starting notification bot...")
		go t.bot.Start()
		defer func() {
			log.Info().Msg("Stopping notification bot...")
			t.bot.Stop()
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.queue:
			t.broadcast(msg)
		}
	}
}

func (t *Telegram) broadcast(msg string) {
	for _, id := range t.cfg.Telegram.AdminChatIDs {
		if _, err := t.send.Send(tele.ChatID(id), msg); err != nil {
			log.Error().Err(err).Int64("chat_id", id).Msg("Failed to send notification")
		}
	}
}

func (t *Telegram) handleTop(c tele.Context) error {
	entries, err := t.stats.Top(context.Background(), t.cfg.Game.LeaderboardSize, "")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load leaderboard for bot")
		return c.Reply("Leaderboard is unavailable right now.")
	}
	return c.Reply(FormatLeaderboard(entries))
}

func (t *Telegram) handleSpender(c tele.Context) error {
	top, err := t.stats.TopSpender(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load top spender for bot")
		return c.Reply("Spending stats are unavailable right now.")
	}
	if top == nil {
		return c.Reply("Nobody has bought hearts yet.")
	}
	return c.Reply(fmt.Sprintf("💰 Top spender: %s ($%s)", top.Name, top.TotalSpent.StringFixed(2)))
}

// FormatPayment renders a payment notification.
func FormatPayment(ev PaymentEvent) string {
	name := ev.Name
	if name == "" {
		name = ev.UserID
	}
	return fmt.Sprintf(
		"❤️ %s bought %d heart(s) for $%s\nLives now: %d\nTotal spent: $%s",
		name, ev.Hearts, ev.Amount.StringFixed(2), ev.Lives, ev.TotalSpent.StringFixed(2),
	)
}

// FormatLeaderboard renders leaderboard entries one per line.
func FormatLeaderboard(entries []model.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "No scores yet."
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s: %d (combo %d)\n", e.Rank, e.Name, e.Score, e.Combo)
	}
	return strings.TrimRight(b.String(), "\n")
}
