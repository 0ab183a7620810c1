// Package apiclient is the terminal client's view of the TypeRush HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"typerush/internal/model"
	"typerush/internal/payment"
)

// DefaultTokenHeader is the header the server reads the user token from.
const DefaultTokenHeader = "x-whop-user-token"

// Client errors.
var (
	ErrNoLives      = errors.New("no lives remaining")
	ErrUnauthorized = errors.New("not authorized, open the game through the platform link")
	ErrNotFound     = errors.New("player not found")
)

// APIError is a non-2xx response not covered by a sentinel error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	TokenHeader string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client calls the API on behalf of one player.
type Client struct {
	base   string
	token  string
	header string
	http   *http.Client
	dialer *websocket.Dialer
}

// New creates a client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	header := opts.TokenHeader
	if header == "" {
		header = DefaultTokenHeader
	}
	return &Client{
		base:   strings.TrimRight(opts.BaseURL, "/"),
		token:  opts.Token,
		header: header,
		http:   hc,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Catalog is the heart pricing served by the API.
type Catalog struct {
	PricePerHeart string `json:"price_per_heart"`
	Currency      string `json:"currency"`
	MinHearts     int    `json:"min_hearts"`
	MaxHearts     int    `json:"max_hearts"`
	QuickPicks    []int  `json:"quick_picks"`
}

type livesBody struct {
	Lives int `json:"lives"`
}

type bestBody struct {
	BestScore int `json:"best_score"`
	BestCombo int `json:"best_combo"`
}

// Me registers the player on first use and returns the account.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Rename sets the leaderboard name.
func (c *Client) Rename(ctx context.Context, name string) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodPut, "/api/me", map[string]string{"name": name}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// LoadLives returns the authoritative lives count.
func (c *Client) LoadLives(ctx context.Context) (int, error) {
	var out livesBody
	err := c.do(ctx, http.MethodGet, "/api/lives", nil, &out)
	return out.Lives, err
}

// SetLives overwrites the lives count.
func (c *Client) SetLives(ctx context.Context, lives int) (int, error) {
	var out livesBody
	err := c.do(ctx, http.MethodPut, "/api/lives", map[string]int{"lives": lives}, &out)
	return out.Lives, err
}

// ConsumeLife spends one life and returns what is left.
func (c *Client) ConsumeLife(ctx context.Context) (int, error) {
	var out livesBody
	err := c.do(ctx, http.MethodPost, "/api/lives/consume", nil, &out)
	return out.Lives, err
}

// AddHearts grants hearts directly after a purchase the client saw succeed.
func (c *Client) AddHearts(ctx context.Context, hearts int) (int, error) {
	var out livesBody
	err := c.do(ctx, http.MethodPost, "/api/hearts", map[string]int{"hearts": hearts}, &out)
	return out.Lives, err
}

// SaveScore submits a finished run.
func (c *Client) SaveScore(ctx context.Context, score, combo int) error {
	return c.do(ctx, http.MethodPost, "/api/scores", map[string]int{"score": score, "combo": combo}, nil)
}

// BestScore returns the player's stored best.
func (c *Client) BestScore(ctx context.Context) (score, combo int, err error) {
	var out bestBody
	err = c.do(ctx, http.MethodGet, "/api/scores/best", nil, &out)
	return out.BestScore, out.BestCombo, err
}

// Leaderboard returns the top limit players, plus the caller when outside them.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	path := "/api/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Entries []model.LeaderboardEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

// Spending returns the caller's spending summary.
func (c *Client) Spending(ctx context.Context) (*model.SpendingStats, error) {
	var out model.SpendingStats
	if err := c.do(ctx, http.MethodGet, "/api/stats/spending", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopSpender returns the highest spender, or nil when nobody has paid.
func (c *Client) TopSpender(ctx context.Context) (*model.TopSpender, error) {
	var out struct {
		TopSpender *model.TopSpender `json:"top_spender"`
	}
	err := c.do(ctx, http.MethodGet, "/api/stats/top-spender", nil, &out)
	return out.TopSpender, err
}

// Catalog returns heart pricing.
func (c *Client) Catalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.do(ctx, http.MethodGet, "/api/hearts/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Checkout creates a checkout for hearts.
func (c *Client) Checkout(ctx context.Context, hearts int) (*payment.Checkout, error) {
	var out payment.Checkout
	if err := c.do(ctx, http.MethodPost, "/api/checkout", map[string]int{"hearts": hearts}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscribe streams change events for tables until ctx is done or the
// connection drops. The returned channel is closed either way.
func (c *Client) Subscribe(ctx context.Context, tables ...string) (<-chan model.ChangeEvent, error) {
	u, err := url.Parse(c.base + "/api/realtime")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if len(tables) > 0 {
		u.RawQuery = url.Values{"tables": {strings.Join(tables, ",")}}.Encode()
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.headers())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to open realtime connection: %w", err)
	}

	events := make(chan model.ChangeEvent, 16)
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()
	go func() {
		defer close(events)
		for {
			var ev model.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.Debug().Err(err).Msg("Realtime connection closed")
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set(c.header, c.token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header = c.headers()
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_ = json.Unmarshal(raw, &e)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusConflict:
			return ErrNoLives
		}
		if e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
	}
	return nil
}
