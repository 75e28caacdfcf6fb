package dice

import (
	"context"

	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// RollOptions controls the side effects of Service.Roll.
type RollOptions struct {
	// Record appends the roll to the session transcript as a system entry.
	Record bool
	// UserID is logged with the roll.
	UserID domain.UserID
}

type Service struct {
	recorder *transcript.Recorder
	src      Source
}

func NewService(recorder *transcript.Recorder, src Source) *Service {
	if src == nil {
		src = DefaultSource()
	}
	return &Service{recorder: recorder, src: src}
}

// Roll validates spec, rolls it, and optionally records it. When recording
// fails the outcome is still returned together with the error.
func (s *Service) Roll(ctx context.Context, sessionID domain.SessionID, spec domain.DiceSpec, opts RollOptions) (domain.DiceOutcome, error) {
	if err := spec.Validate(); err != nil {
		return domain.DiceOutcome{}, err
	}

	out := Roll(spec, s.src)

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"user_id", opts.UserID,
		"dice", spec.Type,
		"count", spec.Count,
	)
	log.Info("dice rolled", "final_result", out.FinalResult)

	if !opts.Record {
		return out, nil
	}
	if _, err := s.recorder.Append(ctx, sessionID, domain.RoleSystem, Describe(spec, out), nil); err != nil {
		log.Error("failed to record dice roll", "error", err)
		return out, err
	}
	return out, nil
}
