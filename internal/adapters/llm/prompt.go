package llm

import (
	"iter"
	"strings"

	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// ChunkSize is the fragment length used by ChunkText.
const ChunkSize = 50

// ChunkText splits a finished reply into fixed-size fragments. It lets
// generators without an incremental API satisfy Stream.
func ChunkText(text string, size int) iter.Seq2[string, error] {
	if size <= 0 {
		size = ChunkSize
	}
	return func(yield func(string, error) bool) {
		r := []rune(text)
		for i := 0; i < len(r); i += size {
			end := min(i+size, len(r))
			if !yield(string(r[i:end]), nil) {
				return
			}
		}
	}
}

// errStream yields a single error.
func errStream(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

// geminiContents maps transcript turns onto Gemini roles. Gemini only knows
// user and model, so system entries are sent as user content.
func geminiContents(turns []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var role genai.Role
		switch t.Role {
		case domain.RoleModel:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func geminiConfig(req domain.GenerateRequest) *genai.GenerateContentConfig {
	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		// According to official examples, the role here is usually RoleUser, not "system"
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func openaiMessages(req domain.GenerateRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		switch t.Role {
		case domain.RoleModel:
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Text))
		default:
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	return msgs
}
