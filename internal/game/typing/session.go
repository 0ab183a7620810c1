// Package typing implements the falling-word typing game.
// A Session is a deterministic simulation driven by Tick and Input; a Runner
// drives it in real time and persists results.
package typing

import (
	"math"
	"math/rand"
)

// Play area and tuning constants. Positions are percentages of the play area.
const (
	BottomThreshold = 88.0
	SpawnY          = -5.0
	SpawnMinX       = 10.0
	SpawnSpanX      = 80.0

	BaseSpeed       = 0.15
	SpeedPerLevel   = 0.04
	BaseSpawnChance = 0.008
	SpawnPerLevel   = 0.002

	InitialDifficulty = 1.0
	DifficultyStep    = 0.3
	MaxDifficulty     = 10.0

	BasePoints     = 10
	ComboBonus     = 3
	ParticleCount  = 8
	ParticleSpread = 5.0
	ParticleDecay  = 0.02
	ParticleFall   = 0.3

	// ParticleShades is the number of theme colors a particle can take.
	ParticleShades = 4
)

// State is the session's position in the menu/playing/gameover cycle.
type State int

const (
	StateMenu State = iota
	StatePlaying
	StateGameOver
)

func (s State) String() string {
	switch s {
	case StateMenu:
		return "menu"
	case StatePlaying:
		return "playing"
	case StateGameOver:
		return "gameover"
	default:
		return "unknown"
	}
}

// Bubble is a falling word.
type Bubble struct {
	ID    int
	Word  string
	X     float64
	Y     float64
	Speed float64
}

// Particle is a short-lived visual fragment emitted by a matched bubble.
type Particle struct {
	ID    int
	X, Y  float64
	VX    float64
	VY    float64
	Life  float64
	Shade int
}

// Config tunes a session for the device it runs on.
type Config struct {
	// Constrained halves the tick rate and the particle count.
	Constrained bool
}

// TickRate returns the target ticks per second.
func (c Config) TickRate() int {
	if c.Constrained {
		return ConstrainedTickRate
	}
	return DefaultTickRate
}

// Particles returns the particle count per match.
func (c Config) Particles() int {
	if c.Constrained {
		return ParticleCount / 2
	}
	return ParticleCount
}

// TickResult reports what a tick did to the player's lives.
type TickResult struct {
	LifeLost bool
	GameOver bool
	Lives    int
	// Bubble is the word that reached the bottom, if any.
	Bubble string
}

// Result is the final tally of a run.
type Result struct {
	Score    int
	MaxCombo int
	NewBest  bool
}

// Snapshot is a copy of the session state for rendering.
type Snapshot struct {
	State      State
	Bubbles    []Bubble
	Particles  []Particle
	Score      int
	Combo      int
	MaxCombo   int
	Difficulty float64
	Lives      int
	BestScore  int
	BestCombo  int
}

// Session holds one player's game. It is not safe for concurrent use.
type Session struct {
	cfg   Config
	vocab *Vocabulary
	rng   *rand.Rand

	state      State
	bubbles    []Bubble
	particles  []Particle
	processed  map[int]struct{}
	used       map[string]struct{}
	nextBubble int
	nextPart   int

	score      int
	combo      int
	maxCombo   int
	difficulty float64
	lives      int
	bestScore  int
	bestCombo  int
}

// New creates a session in the menu state. A nil vocab uses the default
// word list and a nil rng is seeded with 1.
func New(cfg Config, vocab *Vocabulary, rng *rand.Rand) *Session {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Session{
		cfg:        cfg,
		vocab:      vocab,
		rng:        rng,
		state:      StateMenu,
		processed:  make(map[int]struct{}),
		used:       make(map[string]struct{}),
		difficulty: InitialDifficulty,
	}
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Lives returns the locally known lives.
func (s *Session) Lives() int {
	return s.lives
}

// SetBest seeds the stored personal best.
func (s *Session) SetBest(score, combo int) {
	s.bestScore = max(s.bestScore, score)
	s.bestCombo = max(s.bestCombo, combo)
}

// Start begins a new run. A negative lives value keeps the last known count.
func (s *Session) Start(lives int) {
	if lives >= 0 {
		s.lives = lives
	}
	s.state = StatePlaying
	s.score = 0
	s.combo = 0
	s.maxCombo = 0
	s.difficulty = InitialDifficulty
	s.bubbles = s.bubbles[:0]
	s.particles = s.particles[:0]
	clear(s.processed)
	clear(s.used)
	s.spawn()
}

// SyncLives applies an authoritative lives count. Negative values are
// treated as unknown and ignored.
func (s *Session) SyncLives(lives int) {
	if lives < 0 {
		return
	}
	s.lives = lives
}

// Tick advances the simulation by one step. Outside of play it does nothing.
func (s *Session) Tick() TickResult {
	if s.state != StatePlaying {
		return TickResult{Lives: s.lives}
	}

	for i := range s.bubbles {
		s.bubbles[i].Y += s.bubbles[i].Speed
	}

	res := TickResult{Lives: s.lives}
	if idx := s.firstAtBottom(); idx >= 0 {
		b := s.bubbles[idx]
		s.processed[b.ID] = struct{}{}
		res.Bubble = b.Word

		if s.lives > 0 {
			s.lives--
			s.combo = 0
			s.bubbles = append(s.bubbles[:idx], s.bubbles[idx+1:]...)
			delete(s.processed, b.ID)
			res.LifeLost = true
			res.Lives = s.lives
		} else {
			s.gameOver()
			res.GameOver = true
			return res
		}
	}

	s.stepParticles()

	if s.rng.Float64() < s.spawnChance() {
		s.spawn()
	}
	return res
}

// firstAtBottom returns the index of the earliest spawned bubble past the
// threshold that has not been processed, or -1.
func (s *Session) firstAtBottom() int {
	for i, b := range s.bubbles {
		if b.Y <= BottomThreshold {
			continue
		}
		if _, done := s.processed[b.ID]; done {
			continue
		}
		return i
	}
	return -1
}

func (s *Session) gameOver() {
	s.state = StateGameOver
	s.combo = 0
	s.bubbles = s.bubbles[:0]
	clear(s.processed)
	clear(s.used)
	s.recordBest()
}

func (s *Session) recordBest() {
	s.bestScore = max(s.bestScore, s.score)
	s.bestCombo = max(s.bestCombo, s.maxCombo)
}

func (s *Session) stepParticles() {
	live := s.particles[:0]
	for _, p := range s.particles {
		p.X += p.VX
		p.Y += p.VY
		p.VY += ParticleFall
		p.Life -= ParticleDecay
		if p.Life > 0 {
			live = append(live, p)
		}
	}
	s.particles = live
}

func (s *Session) spawnChance() float64 {
	return BaseSpawnChance + s.difficulty*SpawnPerLevel
}

func (s *Session) spawn() {
	s.bubbles = append(s.bubbles, Bubble{
		ID:    s.nextBubble,
		Word:  s.pickWord(),
		X:     s.rng.Float64()*SpawnSpanX + SpawnMinX,
		Y:     SpawnY,
		Speed: BaseSpeed + s.difficulty*SpeedPerLevel,
	})
	s.nextBubble++
}

// pickWord draws uniformly from the words not used this run. Once every
// word has been used the set starts over.
func (s *Session) pickWord() string {
	words := s.vocab.words
	available := make([]string, 0, len(words))
	for _, w := range words {
		if _, used := s.used[w]; !used {
			available = append(available, w)
		}
	}
	if len(available) == 0 {
		clear(s.used)
		available = words
	}

	w := available[s.rng.Intn(len(available))]
	s.used[w] = struct{}{}
	return w
}

// Input tests typed text against the falling words. A match must be exact
// after lowercasing and trimming. The matched bubble is replaced by a new one.
func (s *Session) Input(text string) (matched bool, points int) {
	if s.state != StatePlaying {
		return false, 0
	}
	text = Normalize(text)
	if text == "" {
		return false, 0
	}

	idx := -1
	for i, b := range s.bubbles {
		if b.Word == text {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, 0
	}

	b := s.bubbles[idx]
	s.burst(b.X, b.Y)
	s.bubbles = append(s.bubbles[:idx], s.bubbles[idx+1:]...)
	delete(s.processed, b.ID)

	points = BasePoints + ComboBonus*s.combo
	s.score += points
	s.combo++
	s.maxCombo = max(s.maxCombo, s.combo)

	s.spawn()
	return true, points
}

func (s *Session) burst(x, y float64) {
	for i := 0; i < s.cfg.Particles(); i++ {
		s.particles = append(s.particles, Particle{
			ID:    s.nextPart,
			X:     x,
			Y:     y,
			VX:    (s.rng.Float64() - 0.5) * ParticleSpread,
			VY:    (s.rng.Float64() - 0.5) * ParticleSpread,
			Life:  1,
			Shade: s.rng.Intn(ParticleShades),
		})
		s.nextPart++
	}
}

// RaiseDifficulty steps the difficulty up to MaxDifficulty.
func (s *Session) RaiseDifficulty() {
	if s.state != StatePlaying {
		return
	}
	s.difficulty = math.Min(s.difficulty+DifficultyStep, MaxDifficulty)
}

// Continue resumes a finished run after a purchase. Score, combo and
// difficulty carry over; lives is at least one.
func (s *Session) Continue(lives int) bool {
	if s.state != StateGameOver {
		return false
	}
	s.recordBest()
	s.lives = max(lives, 1)
	s.state = StatePlaying
	s.bubbles = s.bubbles[:0]
	s.particles = s.particles[:0]
	clear(s.processed)
	clear(s.used)
	s.spawn()
	return true
}

// Exit returns to the menu and reports the run's final tally.
func (s *Session) Exit() Result {
	if s.state != StateMenu {
		s.recordBest()
	}
	res := s.Final()
	s.state = StateMenu
	s.bubbles = s.bubbles[:0]
	s.particles = s.particles[:0]
	clear(s.processed)
	return res
}

// Final reports the current tally without changing state. NewBest is set
// when the run holds the personal best.
func (s *Session) Final() Result {
	return Result{Score: s.score, MaxCombo: s.maxCombo, NewBest: s.score > 0 && s.score >= s.bestScore}
}

// Snapshot copies the state for rendering.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		State:      s.state,
		Bubbles:    make([]Bubble, len(s.bubbles)),
		Particles:  make([]Particle, len(s.particles)),
		Score:      s.score,
		Combo:      s.combo,
		MaxCombo:   s.maxCombo,
		Difficulty: s.difficulty,
		Lives:      s.lives,
		BestScore:  s.bestScore,
		BestCombo:  s.bestCombo,
	}
	copy(snap.Bubbles, s.bubbles)
	copy(snap.Particles, s.particles)
	return snap
}
