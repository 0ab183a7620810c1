package typing

import (
	"math"
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

func newTestSession(seed int64) *Session {
	return New(Config{}, nil, rand.New(rand.NewSource(seed)))
}

// place puts a bubble with word at height y.
func place(s *Session, word string, y float64) Bubble {
	b := Bubble{ID: s.nextBubble, Word: word, X: 50, Y: y, Speed: BaseSpeed}
	s.nextBubble++
	s.bubbles = append(s.bubbles, b)
	return b
}

func countAtBottom(s *Session) int {
	n := 0
	for _, b := range s.bubbles {
		if b.Y > BottomThreshold {
			n++
		}
	}
	return n
}

// TestAtMostOneProcessedPerTickProperty checks that a tick removes at most one
// bubble past the threshold and costs at most one life, however many bubbles
// cross together.
func TestAtMostOneProcessedPerTickProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := newTestSession(rapid.Int64().Draw(t, "seed"))
		lives := rapid.IntRange(0, 10).Draw(t, "lives")
		s.Start(lives)

		crossing := rapid.IntRange(1, 12).Draw(t, "crossing")
		for i := 0; i < crossing; i++ {
			place(s, "w", BottomThreshold+rapid.Float64Range(0.01, 5).Draw(t, "y"))
		}

		for s.State() == StatePlaying && countAtBottom(s) > 0 {
			livesBefore := s.Lives()
			atBottomBefore := countAtBottom(s)

			res := s.Tick()

			if res.GameOver {
				if livesBefore != 0 {
					t.Fatalf("game over with %d lives left", livesBefore)
				}
				break
			}
			if !res.LifeLost {
				t.Fatalf("bubble past threshold was not processed")
			}
			if got := livesBefore - s.Lives(); got != 1 {
				t.Fatalf("tick cost %d lives, want 1", got)
			}
			if got := atBottomBefore - countAtBottom(s); got != 1 {
				t.Fatalf("tick processed %d bubbles, want 1", got)
			}
		}
	})
}

// TestScoreSumProperty checks that N straight matches from zero combo score
// the sum of 10 + 3i for i in [0, N).
func TestScoreSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := newTestSession(rapid.Int64().Draw(t, "seed"))
		s.Start(0)

		n := rapid.IntRange(1, 60).Draw(t, "matches")
		want := 0
		for i := 0; i < n; i++ {
			word := s.bubbles[0].Word
			matched, points := s.Input(word)
			if !matched {
				t.Fatalf("match %d on %q failed", i, word)
			}
			if points != BasePoints+ComboBonus*i {
				t.Fatalf("match %d scored %d, want %d", i, points, BasePoints+ComboBonus*i)
			}
			want += BasePoints + ComboBonus*i
		}

		snap := s.Snapshot()
		if snap.Score != want {
			t.Fatalf("score = %d, want %d", snap.Score, want)
		}
		if snap.Combo != n || snap.MaxCombo != n {
			t.Fatalf("combo = %d max = %d, want %d", snap.Combo, snap.MaxCombo, n)
		}
	})
}

// TestComboAndLivesProperty drives random matches, misses and ticks and
// checks combo resets exactly on a lost life or game over, max combo never
// decreases, lives never go negative and a miss at zero lives ends the game.
func TestComboAndLivesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := newTestSession(rapid.Int64().Draw(t, "seed"))
		s.Start(rapid.IntRange(0, 5).Draw(t, "lives"))

		steps := rapid.IntRange(1, 80).Draw(t, "steps")
		for i := 0; i < steps && s.State() == StatePlaying; i++ {
			before := s.Snapshot()

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				if len(s.bubbles) > 0 {
					s.Input(s.bubbles[0].Word)
				}
			case 1:
				place(s, "zzmiss", BottomThreshold+1)
			case 2:
				s.Input("not-a-word")
			}
			res := s.Tick()
			after := s.Snapshot()

			if after.Lives < 0 {
				t.Fatalf("lives went negative: %d", after.Lives)
			}
			if after.MaxCombo < before.MaxCombo {
				t.Fatalf("max combo decreased from %d to %d", before.MaxCombo, after.MaxCombo)
			}
			if res.LifeLost || res.GameOver {
				if after.Combo != 0 {
					t.Fatalf("combo = %d after a miss, want 0", after.Combo)
				}
			} else if after.Combo < before.Combo {
				t.Fatalf("combo dropped from %d to %d without a miss", before.Combo, after.Combo)
			}
			if res.GameOver {
				if before.Lives != 0 {
					t.Fatalf("game over with %d lives", before.Lives)
				}
				if after.State != StateGameOver || len(after.Bubbles) != 0 {
					t.Fatalf("game over left state %s with %d bubbles", after.State, len(after.Bubbles))
				}
			}
		}
	})
}

// TestDifficultyCapProperty checks difficulty never exceeds the cap however
// long the session runs.
func TestDifficultyCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := newTestSession(1)
		s.Start(0)

		n := rapid.IntRange(0, 200).Draw(t, "raises")
		for i := 0; i < n; i++ {
			s.RaiseDifficulty()
		}

		got := s.Snapshot().Difficulty
		want := math.Min(InitialDifficulty+DifficultyStep*float64(n), MaxDifficulty)
		if got > MaxDifficulty {
			t.Fatalf("difficulty %f above cap", got)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("difficulty = %f, want %f", got, want)
		}
	})
}

// TestWordSelectionCyclesProperty checks no word repeats until the whole
// vocabulary has been used.
func TestWordSelectionCyclesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{2,8}`), 1, 20, rapid.ID[string]).Draw(t, "words")
		vocab, err := NewVocabulary(words)
		if err != nil {
			t.Fatal(err)
		}
		s := New(Config{}, vocab, rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed"))))

		seen := make(map[string]bool)
		for i := 0; i < vocab.Len(); i++ {
			w := s.pickWord()
			if seen[w] {
				t.Fatalf("word %q repeated before the vocabulary was exhausted", w)
			}
			seen[w] = true
		}
		if w := s.pickWord(); !vocab.Contains(w) {
			t.Fatalf("word %q not in vocabulary after reset", w)
		}
	})
}
