package domain

import (
	"strconv"
	"strings"
)

// DiceType names one of the supported polyhedral dice.
type DiceType string

const (
	D4   DiceType = "d4"
	D6   DiceType = "d6"
	D8   DiceType = "d8"
	D10  DiceType = "d10"
	D12  DiceType = "d12"
	D20  DiceType = "d20"
	D100 DiceType = "d100"
)

// Sides returns the number of faces, or 0 for an unsupported type.
func (d DiceType) Sides() int {
	switch d {
	case D4, D6, D8, D10, D12, D20, D100:
		n, _ := strconv.Atoi(strings.TrimPrefix(string(d), "d"))
		return n
	}
	return 0
}

const (
	MinDiceCount    = 1
	MaxDiceCount    = 10
	MinDiceModifier = -20
	MaxDiceModifier = 20

	// SkillCheckTarget is the final value a skill-labelled d20 roll must reach.
	SkillCheckTarget = 10
)

// DiceSpec describes one roll request.
type DiceSpec struct {
	Type      DiceType
	Count     int
	Modifier  int
	SkillName string
}

// Validate checks the spec against the supported bounds.
func (s DiceSpec) Validate() error {
	if s.Type.Sides() == 0 {
		return Errorf(ErrInvalidInput, "unsupported dice type %q", s.Type)
	}
	if s.Count < MinDiceCount || s.Count > MaxDiceCount {
		return Errorf(ErrInvalidInput, "count must be between %d and %d", MinDiceCount, MaxDiceCount)
	}
	if s.Modifier < MinDiceModifier || s.Modifier > MaxDiceModifier {
		return Errorf(ErrInvalidInput, "modifier must be between %d and %d", MinDiceModifier, MaxDiceModifier)
	}
	return nil
}

// DiceOutcome is the result of rolling a DiceSpec.
type DiceOutcome struct {
	Rolls       []int
	Total       int
	Modifier    int
	FinalResult int
	SkillName   string
	// Success is set only for skill-labelled d20 rolls.
	Success *bool
}
