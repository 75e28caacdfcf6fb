package ws

import (
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// Wire payloads shared by the real-time and HTTP game routes.

type ActionRequest struct {
	Action      string         `json:"action"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (r ActionRequest) ToAction(user domain.UserID) turn.Action {
	return turn.Action{
		Action:      r.Action,
		Description: r.Description,
		Parameters:  r.Parameters,
		UserID:      &user,
	}
}

type DiceRequest struct {
	DiceType  string `json:"dice_type"`
	Count     *int   `json:"count,omitempty"`
	Modifier  int    `json:"modifier"`
	SkillName string `json:"skill_name,omitempty"`
}

// Spec fills the wire defaults: one d20 with no modifier.
func (r DiceRequest) Spec() domain.DiceSpec {
	spec := domain.DiceSpec{
		Type:      domain.DiceType(r.DiceType),
		Count:     1,
		Modifier:  r.Modifier,
		SkillName: r.SkillName,
	}
	if spec.Type == "" {
		spec.Type = domain.D20
	}
	if r.Count != nil {
		spec.Count = *r.Count
	}
	return spec
}

type DiceResult struct {
	Rolls       []int  `json:"rolls"`
	Total       int    `json:"total"`
	Modifier    int    `json:"modifier"`
	FinalResult int    `json:"final_result"`
	SkillName   string `json:"skill_name,omitempty"`
	Success     *bool  `json:"success"`
}

func ToDiceResult(out domain.DiceOutcome) DiceResult {
	rolls := out.Rolls
	if rolls == nil {
		rolls = []int{}
	}
	return DiceResult{
		Rolls:       rolls,
		Total:       out.Total,
		Modifier:    out.Modifier,
		FinalResult: out.FinalResult,
		SkillName:   out.SkillName,
		Success:     out.Success,
	}
}

type GMResponse struct {
	SessionID       string    `json:"session_id"`
	Response        string    `json:"response"`
	ActionProcessed string    `json:"action_processed"`
	Timestamp       time.Time `json:"timestamp"`
	Error           string    `json:"error,omitempty"`
}

func ToGMResponse(res *turn.Result) GMResponse {
	return GMResponse{
		SessionID:       string(res.SessionID),
		Response:        res.Response,
		ActionProcessed: res.ActionProcessed,
		Timestamp:       res.Timestamp,
		Error:           res.Error,
	}
}

type errorPayload struct {
	Message string `json:"message"`
}
