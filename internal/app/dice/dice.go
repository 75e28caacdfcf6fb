// Package dice rolls polyhedral dice and records the outcome in a session
// transcript.
//
// Roll is a pure function of its DiceSpec and Source. Given a seeded source
// the outcome is reproducible, which is what the tests and replay rely on.
package dice

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// Source yields die faces.
type Source interface {
	// Face returns a value in [1, sides].
	Face(sides int) int
}

type randSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *randSource) Face(sides int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(sides) + 1
}

// NewSeededSource returns a deterministic source. It is safe for concurrent use.
func NewSeededSource(seed uint64) Source {
	return &randSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type globalSource struct{}

func (globalSource) Face(sides int) int { return rand.IntN(sides) + 1 }

// DefaultSource draws from the runtime's global generator.
func DefaultSource() Source { return globalSource{} }

// SourceFunc adapts a function to Source.
type SourceFunc func(sides int) int

func (f SourceFunc) Face(sides int) int { return f(sides) }

// Roll rolls spec.Count dice of spec.Type using src. The spec must be valid.
func Roll(spec domain.DiceSpec, src Source) domain.DiceOutcome {
	sides := spec.Type.Sides()
	rolls := make([]int, spec.Count)
	total := 0
	for i := range rolls {
		rolls[i] = src.Face(sides)
		total += rolls[i]
	}

	out := domain.DiceOutcome{
		Rolls:       rolls,
		Total:       total,
		Modifier:    spec.Modifier,
		FinalResult: total + spec.Modifier,
		SkillName:   spec.SkillName,
	}
	if spec.SkillName != "" && spec.Type == domain.D20 {
		success := out.FinalResult >= domain.SkillCheckTarget
		out.Success = &success
	}
	return out
}

// Describe renders the transcript line for a roll, e.g.
// "Rolled 1d20 + 3 for Stealth: [14] = 17 (Success)".
func Describe(spec domain.DiceSpec, out domain.DiceOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rolled %d%s", spec.Count, spec.Type)
	switch {
	case spec.Modifier > 0:
		fmt.Fprintf(&b, " + %d", spec.Modifier)
	case spec.Modifier < 0:
		fmt.Fprintf(&b, " - %d", -spec.Modifier)
	}
	if spec.SkillName != "" {
		fmt.Fprintf(&b, " for %s", spec.SkillName)
	}

	faces := make([]string, len(out.Rolls))
	for i, r := range out.Rolls {
		faces[i] = fmt.Sprint(r)
	}
	fmt.Fprintf(&b, ": [%s] = %d", strings.Join(faces, ", "), out.FinalResult)

	if out.Success != nil {
		if *out.Success {
			b.WriteString(" (Success)")
		} else {
			b.WriteString(" (Failure)")
		}
	}
	return b.String()
}
