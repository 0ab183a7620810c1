package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"typerush/internal/game/typing"
)

const (
	styleNone = iota
	styleBubble
	styleBubbleLow
	styleThreshold
	styleParticle0
)

var particleRunes = []rune("*+·.")

type cell struct {
	r     rune
	style int
}

// field is a character grid the play area is drawn into.
type field struct {
	w, h  int
	cells []cell
}

func newField(w, h int) *field {
	w, h = max(w, 20), max(h, 5)
	f := &field{w: w, h: h, cells: make([]cell, w*h)}
	for i := range f.cells {
		f.cells[i] = cell{r: ' '}
	}
	return f
}

// toCell maps normalized 0-100 coordinates to a grid position.
func (f *field) toCell(x, y float64) (col, row int) {
	return int(x / 100 * float64(f.w)), int(y / 100 * float64(f.h))
}

func (f *field) set(col, row int, r rune, style int) {
	if col < 0 || col >= f.w || row < 0 || row >= f.h {
		return
	}
	f.cells[row*f.w+col] = cell{r: r, style: style}
}

func (f *field) text(col, row int, s string, style int) {
	for i, r := range []rune(s) {
		f.set(col+i, row, r, style)
	}
}

// drawSnapshot draws bubbles, particles and the miss line.
func (f *field) drawSnapshot(snap typing.Snapshot) {
	_, line := f.toCell(0, typing.BottomThreshold)
	for c := 0; c < f.w; c += 2 {
		f.set(c, line, '╌', styleThreshold)
	}

	for _, p := range snap.Particles {
		col, row := f.toCell(p.X, p.Y)
		shade := min(max(p.Shade, 0), len(particleRunes)-1)
		f.set(col, row, particleRunes[shade], styleParticle0+shade)
	}

	for _, b := range snap.Bubbles {
		col, row := f.toCell(b.X, b.Y)
		word := []rune(b.Word)
		style := styleBubble
		if b.Y > typing.BottomThreshold*0.75 {
			style = styleBubbleLow
		}
		f.text(col-len(word)/2, row, b.Word, style)
	}
}

// render converts the grid to styled lines, batching runs of equal style.
func (f *field) render(theme Theme) string {
	styles := map[int]lipgloss.Style{
		styleBubble:    theme.Bubble,
		styleBubbleLow: theme.BubbleLow,
		styleThreshold: theme.Threshold,
	}
	for i, s := range theme.Particles {
		styles[styleParticle0+i] = s
	}

	var out strings.Builder
	for row := 0; row < f.h; row++ {
		line := f.cells[row*f.w : (row+1)*f.w]
		start := 0
		for i := 1; i <= len(line); i++ {
			if i < len(line) && line[i].style == line[start].style {
				continue
			}
			var seg strings.Builder
			for _, c := range line[start:i] {
				seg.WriteRune(c.r)
			}
			if s, ok := styles[line[start].style]; ok {
				out.WriteString(s.Render(seg.String()))
			} else {
				out.WriteString(seg.String())
			}
			start = i
		}
		if row < f.h-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// plain returns the grid without styling.
func (f *field) plain() string {
	var out strings.Builder
	for row := 0; row < f.h; row++ {
		for _, c := range f.cells[row*f.w : (row+1)*f.w] {
			out.WriteRune(c.r)
		}
		if row < f.h-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func hearts(n int) string {
	switch {
	case n <= 0:
		return "♡ 0"
	case n <= 5:
		return strings.Repeat("♥", n)
	default:
		return fmt.Sprintf("♥ ×%d", n)
	}
}

// hud renders the score line above the play field.
func hud(theme Theme, snap typing.Snapshot, width int) string {
	item := func(label, value string) string {
		return theme.HUDLabel.Render(label+" ") + theme.HUDValue.Render(value)
	}
	parts := []string{
		item("Score", fmt.Sprint(snap.Score)),
		item("Combo", fmt.Sprintf("x%d", snap.Combo)),
		item("Best", fmt.Sprint(snap.BestScore)),
		item("Level", fmt.Sprintf("%.1f", snap.Difficulty)),
		theme.Hearts.Render(hearts(snap.Lives)),
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(parts, "   "))
}
