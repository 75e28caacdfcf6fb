package dice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

func fixed(v int) Source {
	return SourceFunc(func(int) int { return v })
}

func TestRollSkillCheckWithFixedSource(t *testing.T) {
	spec := domain.DiceSpec{Type: domain.D20, Count: 1, Modifier: 5, SkillName: "Stealth"}

	out := Roll(spec, fixed(6))

	assert.Equal(t, []int{6}, out.Rolls)
	assert.Equal(t, 6, out.Total)
	assert.Equal(t, 5, out.Modifier)
	assert.Equal(t, 11, out.FinalResult)
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)
}

func TestRollSuccessFlag(t *testing.T) {
	tests := []struct {
		name string
		spec domain.DiceSpec
		face int
		want *bool
	}{
		{name: "d20 without skill", spec: domain.DiceSpec{Type: domain.D20, Count: 1}, face: 15},
		{name: "d6 with skill", spec: domain.DiceSpec{Type: domain.D6, Count: 1, SkillName: "Athletics"}, face: 6},
		{name: "d20 skill below target", spec: domain.DiceSpec{Type: domain.D20, Count: 1, Modifier: -1, SkillName: "Arcana"}, face: 10, want: new(bool)},
		{name: "d20 skill at target", spec: domain.DiceSpec{Type: domain.D20, Count: 1, SkillName: "Arcana"}, face: 10, want: ptr(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Roll(tt.spec, fixed(tt.face))
			assert.Equal(t, tt.want, out.Success)
		})
	}
}

func TestRollBoundsHoldForEveryDie(t *testing.T) {
	src := NewSeededSource(42)
	for _, typ := range []domain.DiceType{domain.D4, domain.D6, domain.D8, domain.D10, domain.D12, domain.D20, domain.D100} {
		for count := domain.MinDiceCount; count <= domain.MaxDiceCount; count++ {
			for _, mod := range []int{domain.MinDiceModifier, 0, domain.MaxDiceModifier} {
				spec := domain.DiceSpec{Type: typ, Count: count, Modifier: mod}
				out := Roll(spec, src)

				require.Len(t, out.Rolls, count)
				sum := 0
				for _, r := range out.Rolls {
					require.GreaterOrEqual(t, r, 1)
					require.LessOrEqual(t, r, typ.Sides())
					sum += r
				}
				require.Equal(t, sum, out.Total)
				require.Equal(t, sum+mod, out.FinalResult)
			}
		}
	}
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	spec := domain.DiceSpec{Type: domain.D100, Count: 10}
	a := Roll(spec, NewSeededSource(7))
	b := Roll(spec, NewSeededSource(7))
	assert.Equal(t, a.Rolls, b.Rolls)
}

func TestDescribe(t *testing.T) {
	success := true
	failure := false
	tests := []struct {
		spec domain.DiceSpec
		out  domain.DiceOutcome
		want string
	}{
		{
			spec: domain.DiceSpec{Type: domain.D20, Count: 1, Modifier: 3, SkillName: "Stealth"},
			out:  domain.DiceOutcome{Rolls: []int{14}, FinalResult: 17, Success: &success},
			want: "Rolled 1d20 + 3 for Stealth: [14] = 17 (Success)",
		},
		{
			spec: domain.DiceSpec{Type: domain.D6, Count: 2, Modifier: 3, SkillName: "Stealth"},
			out:  domain.DiceOutcome{Rolls: []int{4, 2}, FinalResult: 9},
			want: "Rolled 2d6 + 3 for Stealth: [4, 2] = 9",
		},
		{
			spec: domain.DiceSpec{Type: domain.D20, Count: 1, Modifier: -2, SkillName: "Arcana"},
			out:  domain.DiceOutcome{Rolls: []int{5}, FinalResult: 3, Success: &failure},
			want: "Rolled 1d20 - 2 for Arcana: [5] = 3 (Failure)",
		},
		{
			spec: domain.DiceSpec{Type: domain.D8, Count: 1},
			out:  domain.DiceOutcome{Rolls: []int{8}, FinalResult: 8},
			want: "Rolled 1d8: [8] = 8",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.spec, tt.out))
	}
}

func TestDescribeRolledOutcomes(t *testing.T) {
	check := domain.DiceSpec{Type: domain.D20, Count: 1, Modifier: 3, SkillName: "Stealth"}
	assert.Equal(t, "Rolled 1d20 + 3 for Stealth: [14] = 17 (Success)", Describe(check, Roll(check, fixed(14))))

	damage := domain.DiceSpec{Type: domain.D6, Count: 2, Modifier: 3, SkillName: "Stealth"}
	assert.Equal(t, "Rolled 2d6 + 3 for Stealth: [4, 4] = 11", Describe(damage, Roll(damage, fixed(4))))
}

func TestServiceRollRecordsSystemEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	svc := NewService(transcript.NewRecorder(store), fixed(3))

	out, err := svc.Roll(ctx, "s1", domain.DiceSpec{Type: domain.D6, Count: 2, Modifier: 1}, RollOptions{Record: true})
	require.NoError(t, err)
	assert.Equal(t, 7, out.FinalResult)

	msgs, _, err := store.ListMessages(ctx, "s1", domain.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, "Rolled 2d6 + 1: [3, 3] = 7", msgs[0].Content)
}

func TestServiceRollWithoutRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMessageStore()
	svc := NewService(transcript.NewRecorder(store), fixed(1))

	_, err := svc.Roll(ctx, "s1", domain.DiceSpec{Type: domain.D4, Count: 1}, RollOptions{})
	require.NoError(t, err)

	_, total, err := store.ListMessages(ctx, "s1", domain.MessageQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestServiceRollRejectsInvalidSpec(t *testing.T) {
	svc := NewService(transcript.NewRecorder(memory.NewMessageStore()), nil)

	for _, spec := range []domain.DiceSpec{
		{Type: "d7", Count: 1},
		{Type: domain.D6, Count: 0},
		{Type: domain.D6, Count: 11},
		{Type: domain.D6, Count: 1, Modifier: 21},
		{Type: domain.D6, Count: 1, Modifier: -21},
	} {
		_, err := svc.Roll(context.Background(), "s1", spec, RollOptions{Record: true})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "%+v", spec)
	}
}

type failingStore struct{ *memory.MessageStore }

func (failingStore) AppendMessage(context.Context, *domain.Message) error {
	return errors.New("disk full")
}

func TestServiceRollKeepsOutcomeWhenRecordingFails(t *testing.T) {
	svc := NewService(transcript.NewRecorder(failingStore{memory.NewMessageStore()}), fixed(20))

	out, err := svc.Roll(context.Background(), "s1", domain.DiceSpec{Type: domain.D20, Count: 1}, RollOptions{Record: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, 20, out.FinalResult)
}

func ptr[T any](v T) *T { return &v }
