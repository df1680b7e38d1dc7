package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/gravacoach/server/pkg/types"
)

// Generator produces a structured recommendation from the derived signal
// snapshot. Callers must treat the result as potentially absent or malformed
// and fall back to the rule-based plan.
type Generator interface {
	Plan(ctx context.Context, snap types.Snapshot, goal *types.Goal) (*types.Plan, error)
	Chat(ctx context.Context, question string, recoveryScore *float64) (string, error)
}

const planSystemPrompt = `You are CenturyCoach, a cycling training and fueling assistant.
Use wearable readiness metrics to gate intensity:
- 80-100 recovery & HRV not down & sleep debt < 1h & (acute - chronic) <= 2 -> Intervals/Tempo.
- 60-79 -> Endurance with short tempo optional.
- 40-59 -> Recovery spin only.
- <40 -> Rest/mobility.

Fueling per hour: 60-90g carbs, 0.4-0.8L fluids (more in heat), 300-1000mg sodium.

Respond with ONLY a JSON object of this exact shape, no markdown fences:
{"workout":{"label":string,"duration_min":number,"zones":string,"intervals":string,"notes":string},"fueling":{"carbs_g":number,"fluids_l":number,"sodium_mg":number,"per_hour":{"carbs_g":number,"fluids_l":number,"sodium_mg":number}},"rationale":string,"flags":[string]}`

// GeminiGenerator generates recommendations using Google Gemini.
type GeminiGenerator struct {
	APIKey string
	Model  string
}

func NewGeminiGenerator(apiKey string) *GeminiGenerator {
	return &GeminiGenerator{
		APIKey: apiKey,
		Model:  "gemini-2.0-flash",
	}
}

func (g *GeminiGenerator) Plan(ctx context.Context, snap types.Snapshot, goal *types.Goal) (*types.Plan, error) {
	summaryJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	prompt := fmt.Sprintf("%s\n\nToday's summary: %s", planSystemPrompt, summaryJSON)
	if goal != nil {
		goalJSON, _ := json.Marshal(goal)
		prompt += fmt.Sprintf("\nAthlete goal: %s", goalJSON)
	}
	prompt += "\nAssume moderate heat unless stated otherwise."

	raw, err := g.generate(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var p types.Plan
	if err := json.Unmarshal([]byte(stripFences(raw)), &p); err != nil {
		return nil, fmt.Errorf("parse plan response: %w", err)
	}
	if p.Workout.Label == "" {
		return nil, fmt.Errorf("plan response missing workout label")
	}
	p.Source = "model"
	return &p, nil
}

func (g *GeminiGenerator) Chat(ctx context.Context, question string, recoveryScore *float64) (string, error) {
	recovery := "unknown"
	if recoveryScore != nil {
		recovery = fmt.Sprintf("%.0f", *recoveryScore)
	}

	prompt := fmt.Sprintf(`You are CenturyCoach - concise, practical training/fueling guidance. Not medical advice. Cite the athlete's metrics when relevant.

Recovery today: %s.
Question: %s`, recovery, question)

	return g.generate(ctx, prompt, false)
}

func (g *GeminiGenerator) generate(ctx context.Context, prompt string, jsonOutput bool) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.Model)
	model.SetTemperature(0.4)
	model.SetMaxOutputTokens(800)
	if jsonOutput {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	out := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}

// stripFences removes markdown code fences some models wrap JSON in despite
// instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
