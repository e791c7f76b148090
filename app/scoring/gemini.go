package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"example/resume-api/app/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini asks a hosted model for scores and parses its JSON answer.
type Gemini struct {
	client   *genai.Client
	generate func(ctx context.Context, prompt string) (string, error)
}

func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(`You grade resumes for applicant tracking systems.
Answer with a single JSON object and nothing else. Scores are integers from 0 to 100.`)},
	}

	return &Gemini{
		client: client,
		generate: func(ctx context.Context, prompt string) (string, error) {
			res, err := model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", fmt.Errorf("error generating content: %w", err)
			}
			return responseText(res)
		},
	}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", errors.New("empty model response")
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("model response has no text")
	}
	return b.String(), nil
}

type feedbackJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type keywordsJSON struct {
	Matched []string `json:"matched"`
	Missing []string `json:"missing"`
}

func (g *Gemini) ScoreBasic(ctx context.Context, text string) (models.BasicResult, error) {
	var out struct {
		Score    *int           `json:"score"`
		Feedback []feedbackJSON `json:"feedback"`
	}
	prompt := `Give a quick ATS readiness score and up to 6 feedback items.
Schema: {"score": int, "feedback": [{"kind": "positive"|"warning", "message": string}]}

Resume:
` + text
	if err := g.ask(ctx, prompt, &out); err != nil {
		return models.BasicResult{}, err
	}
	if out.Score == nil {
		return models.BasicResult{}, errors.New("model response has no score")
	}
	return models.BasicResult{Score: models.ClampScore(*out.Score), Feedback: toFeedback(out.Feedback)}, nil
}

func (g *Gemini) ScoreDetailed(ctx context.Context, text string) (models.DetailedResult, error) {
	var out struct {
		Score           *int           `json:"score"`
		KeywordAnalysis keywordsJSON   `json:"keywordAnalysis"`
		Feedback        []feedbackJSON `json:"feedback"`
	}
	prompt := `Write a detailed ATS report: a score, the industry keywords the resume uses (matched)
and the important ones it lacks (missing), and up to 10 feedback items.
Schema: {"score": int, "keywordAnalysis": {"matched": [string], "missing": [string]},
"feedback": [{"kind": "positive"|"warning", "message": string}]}

Resume:
` + text
	if err := g.ask(ctx, prompt, &out); err != nil {
		return models.DetailedResult{}, err
	}
	if out.Score == nil {
		return models.DetailedResult{}, errors.New("model response has no score")
	}
	return models.DetailedResult{
		Score:           models.ClampScore(*out.Score),
		KeywordAnalysis: models.NewKeywordAnalysis(lowerAll(out.KeywordAnalysis.Matched), lowerAll(out.KeywordAnalysis.Missing)),
		Feedback:        toFeedback(out.Feedback),
	}, nil
}

func (g *Gemini) Optimize(ctx context.Context, text, jobDescription string) (models.OptimizationResult, error) {
	var out struct {
		Score           *int         `json:"score"`
		KeywordAnalysis keywordsJSON `json:"keywordAnalysis"`
		Suggestions     []string     `json:"suggestions"`
	}
	prompt := `Compare the resume to the job description. Score how well it matches, list the job's
keywords found in the resume (matched) and absent from it (missing), and give concrete edits.
Schema: {"score": int, "keywordAnalysis": {"matched": [string], "missing": [string]}, "suggestions": [string]}

Job description:
` + jobDescription + `

Resume:
` + text
	if err := g.ask(ctx, prompt, &out); err != nil {
		return models.OptimizationResult{}, err
	}
	if out.Score == nil {
		return models.OptimizationResult{}, errors.New("model response has no score")
	}
	return models.OptimizationResult{
		Score:           models.ClampScore(*out.Score),
		KeywordAnalysis: models.NewKeywordAnalysis(lowerAll(out.KeywordAnalysis.Matched), lowerAll(out.KeywordAnalysis.Missing)),
		Suggestions:     out.Suggestions,
	}, nil
}

func (g *Gemini) ask(ctx context.Context, prompt string, out any) error {
	raw, err := g.generate(ctx, prompt)
	if err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func toFeedback(in []feedbackJSON) []models.Feedback {
	out := make([]models.Feedback, 0, len(in))
	for _, f := range in {
		msg := strings.TrimSpace(f.Message)
		if msg == "" {
			continue
		}
		kind := models.FeedbackWarning
		if strings.EqualFold(f.Kind, string(models.FeedbackPositive)) {
			kind = models.FeedbackPositive
		}
		out = append(out, models.Feedback{Kind: kind, Message: msg})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, normalize(strings.TrimSpace(s)))
	}
	return out
}
