package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"typerush/internal/model"
)

// ListenFunc opens a connection subscribed to a notification channel.
type ListenFunc func(ctx context.Context, channel string) (*pgx.Conn, error)

// listener is the part of *pgx.Conn the feed reads from.
type listener interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Feed turns Postgres notifications on one channel into change events.
type Feed struct {
	open     func(ctx context.Context) (listener, error)
	after    func(time.Duration) <-chan time.Time
	channel  string
	hub      *Hub
	hooks    []func(context.Context, model.ChangeEvent)
	retryMin time.Duration
	retryMax time.Duration
}

// NewFeed creates a feed publishing into hub.
func NewFeed(listen ListenFunc, channel string, hub *Hub) *Feed {
	return &Feed{
		open: func(ctx context.Context) (listener, error) {
			conn, err := listen(ctx, channel)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		after:    time.After,
		channel:  channel,
		hub:      hub,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

// OnEvent registers fn to run for every decoded event before it is
// published. Hooks run on the feed goroutine and must not block.
func (f *Feed) OnEvent(fn func(context.Context, model.ChangeEvent)) {
	f.hooks = append(f.hooks, fn)
}

// DecodeNotification parses a trigger payload.
func DecodeNotification(payload string) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("invalid change payload: %w", err)
	}
	if ev.Table == "" || ev.Type == "" {
		return ev, fmt.Errorf("change payload missing table or type")
	}
	return ev, nil
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff
// when the connection drops. The backoff starts over after every connection
// that was established. It only returns ctx's error.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.retryMin
	for {
		connected, err := f.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.retryMin
		}

		log.Error().Err(err).Dur("retry_in", backoff).Msg("Change feed disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.after(backoff):
		}
		backoff *= 2
		if backoff > f.retryMax {
			backoff = f.retryMax
		}
	}
}

func (f *Feed) consume(ctx context.Context) (connected bool, err error) {
	conn, err := f.open(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close(context.Background())

	log.Info().Str("channel", f.channel).Msg("Change feed connected")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		f.dispatch(ctx, n.Payload)
	}
}

func (f *Feed) dispatch(ctx context.Context, payload string) {
	ev, err := DecodeNotification(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping change notification")
		return
	}
	for _, hook := range f.hooks {
		hook(ctx, ev)
	}
	f.hub.Publish(ev)
}
