// Package servicetest provides in-memory stores for exercising services
// and handlers without a database.
package servicetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"typerush/internal/model"
	"typerush/internal/payment"
	"typerush/internal/repository"
)

// Users is an in-memory user store with the same semantics as the Postgres
// repository.
type Users struct {
	mu    sync.Mutex
	users map[string]*model.User
	seq   int
}

// NewUsers creates an empty store.
func NewUsers() *Users {
	return &Users{users: make(map[string]*model.User)}
}

// Put inserts u as is. Creation order follows insertion order.
func (m *Users) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	u.CreatedAt = time.Unix(int64(m.seq), 0)
	m.users[u.ID] = u
}

func (m *Users) copyOf(u *model.User) *model.User {
	c := *u
	return &c
}

func (m *Users) update(id string, fn func(u *model.User) error) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	return m.copyOf(u), nil
}

func (m *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return m.copyOf(u), nil
}

func (m *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username && username != "" {
			return m.copyOf(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *Users) GetOrCreate(ctx context.Context, id, username, name string, initialLives int) (*model.User, bool, error) {
	if u, err := m.GetByID(ctx, id); err == nil {
		return u, false, nil
	}
	m.Put(&model.User{ID: id, Username: username, Name: name, Lives: initialLives})
	u, err := m.GetByID(ctx, id)
	return u, true, err
}

func (m *Users) UpdateProfile(_ context.Context, id, username, name string) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		if username != "" {
			u.Username = username
		}
		if name != "" {
			u.Name = name
		}
		return nil
	})
}

func (m *Users) SetLives(_ context.Context, id string, lives int) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		u.Lives = max(lives, 0)
		return nil
	})
}

func (m *Users) AddLives(_ context.Context, id string, delta int) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		u.Lives = max(u.Lives+delta, 0)
		return nil
	})
}

func (m *Users) ConsumeLife(_ context.Context, id string) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		if u.Lives <= 0 {
			return repository.ErrNoLives
		}
		u.Lives--
		return nil
	})
}

func (m *Users) SaveBest(_ context.Context, id string, score, combo int) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		u.BestScore = max(u.BestScore, score)
		u.BestCombo = max(u.BestCombo, combo)
		return nil
	})
}

func (m *Users) RecordSpend(_ context.Context, id string, amount decimal.Decimal, hearts int, at time.Time) (*model.User, error) {
	return m.update(id, func(u *model.User) error {
		u.TotalSpent = u.TotalSpent.Add(amount)
		u.Lives += hearts
		u.PaymentCount++
		u.LastPaymentAt = &at
		return nil
	})
}

func (m *Users) sorted() []*model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, m.copyOf(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestScore != out[j].BestScore {
			return out[i].BestScore > out[j].BestScore
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Users) GetTop(_ context.Context, limit int) ([]*model.User, error) {
	all := m.sorted()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Users) RankOf(_ context.Context, bestScore int) (int, error) {
	higher := 0
	for _, u := range m.sorted() {
		if u.BestScore > bestScore {
			higher++
		}
	}
	return higher + 1, nil
}

func (m *Users) TopSpender(_ context.Context) (*model.TopSpender, error) {
	var top *model.User
	for _, u := range m.sorted() {
		if u.TotalSpent.IsPositive() && (top == nil || u.TotalSpent.GreaterThan(top.TotalSpent)) {
			top = u
		}
	}
	if top == nil {
		return nil, nil
	}
	return &model.TopSpender{Name: top.DisplayName(), TotalSpent: top.TotalSpent}, nil
}

// Payments is an in-memory payment summary store.
type Payments struct {
	mu   sync.Mutex
	rows map[string]*model.Payment
}

// NewPayments creates an empty store.
func NewPayments() *Payments {
	return &Payments{rows: make(map[string]*model.Payment)}
}

func (m *Payments) Upsert(_ context.Context, userID, paymentType string, amount decimal.Decimal, at time.Time) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "/" + paymentType
	p, ok := m.rows[key]
	if !ok {
		p = &model.Payment{ID: int64(len(m.rows) + 1), UserID: userID, PaymentType: paymentType, FirstPaymentAt: at}
		m.rows[key] = p
	}
	p.Amount = p.Amount.Add(amount)
	p.PaymentCount++
	p.LastPaymentAt = at
	c := *p
	return &c, nil
}

func (m *Payments) ListByUser(_ context.Context, userID string) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.rows {
		if p.UserID == userID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// Checkout records checkout requests and returns canned checkouts.
type Checkout struct {
	mu    sync.Mutex
	Calls []int
	Err   error
}

// CreateCheckoutConfig records hearts and returns a checkout for userID.
func (f *Checkout) CreateCheckoutConfig(_ context.Context, userID string, hearts int) (*payment.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, hearts)
	if f.Err != nil {
		return nil, f.Err
	}
	return &payment.Checkout{ID: "ch_" + userID, PlanID: "plan_1", PurchaseURL: "https://checkout.test/" + userID, Hearts: hearts}, nil
}
