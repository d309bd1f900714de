package papergen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// fallbackScore is attached to every raw question when the scoring call
// itself fails. The stage fails open on validator errors: availability is
// preferred over strict quality gating, a deliberate policy choice. It only
// produces an empty validated set when there were no raw questions at all.
const (
	fallbackScore    = 0.75
	fallbackFeedback = "Auto-approved due to validation error"
	defaultScore     = 0.5
	defaultFeedback  = "No feedback"
)

// QuestionValidator scores candidate questions with the LLM and filters
// them against the approval threshold.
type QuestionValidator struct {
	client ChatCompleter
	model  string
}

// NewQuestionValidator creates a validator backed by the given chat client.
func NewQuestionValidator(client ChatCompleter, model string) *QuestionValidator {
	return &QuestionValidator{
		client: client,
		model:  model,
	}
}

// validationItem is the compact per-question view sent to the scorer.
type validationItem struct {
	Index         int    `json:"index"`
	Question      string `json:"question"`
	QuestionLaTeX string `json:"question_latex"`
	Difficulty    int    `json:"difficulty"`
}

// scoreVerdict is one scoring object in the validator response.
type scoreVerdict struct {
	ValidationScore *float64 `json:"validation_score"`
	Feedback        string   `json:"feedback"`
	Approved        bool     `json:"approved"`
}

// Validate scores state.RawGeneratedQuestions and writes the approved
// subset to state.ValidatedQuestions, preserving order. Questions beyond
// the length of the scoring response are dropped, not kept unscored.
func (qv *QuestionValidator) Validate(ctx context.Context, state *WorkflowState, logger *RunLogger) StageOutcome {
	questions := state.RawGeneratedQuestions
	if len(questions) == 0 {
		VerboseLog("No questions to validate")
		state.ValidatedQuestions = []Question{}
		return StageOutcome{Stage: StageValidate, Status: StatusDegraded, Detail: "no questions to validate"}
	}

	inputs := state.UserInputs

	items := make([]validationItem, 0, len(questions))
	for i, q := range questions {
		difficulty := q.Difficulty
		if difficulty == 0 {
			difficulty = inputs.Difficulty
		}
		items = append(items, validationItem{
			Index:         i,
			Question:      q.Question,
			QuestionLaTeX: q.QuestionLaTeX,
			Difficulty:    difficulty,
		})
	}

	itemsJSON, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return qv.failOpen(state, err)
	}

	userPrompt := qv.buildUserPrompt(inputs, string(itemsJSON))
	if logger != nil {
		logger.LogLLMRequest(StageValidate, userPrompt)
	}

	resp, err := qv.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       qv.model,
			Temperature: 0.7,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: qv.buildSystemPrompt(),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
		},
	)
	if err != nil {
		return qv.failOpen(state, err)
	}

	content := firstChoiceContent(resp)
	if logger != nil {
		logger.LogLLMResponse(StageValidate, content)
	}

	var verdicts []scoreVerdict
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &verdicts); err != nil {
		return qv.failOpen(state, fmt.Errorf("parse failure: %w", err))
	}

	// Merge verdicts back onto the questions in order. A question without a
	// corresponding verdict is dropped from the merged set.
	merged := make([]Question, 0, len(questions))
	for i := range questions {
		if i >= len(verdicts) {
			break
		}
		v := verdicts[i]
		score := defaultScore
		if v.ValidationScore != nil {
			score = *v.ValidationScore
		}
		feedback := v.Feedback
		if feedback == "" {
			feedback = defaultFeedback
		}
		questions[i].ValidationScore = &score
		questions[i].Feedback = feedback
		merged = append(merged, questions[i])
	}

	approved := make([]Question, 0, len(merged))
	for _, q := range merged {
		if q.Approved() {
			approved = append(approved, q)
		}
	}
	state.ValidatedQuestions = approved

	passRate := 0.0
	if len(merged) > 0 {
		passRate = float64(len(approved)) / float64(len(merged))
	}
	VerboseLog("Validation complete. Pass rate: %.0f%% (%d/%d)", passRate*100, len(approved), len(merged))
	return StageOutcome{Stage: StageValidate, Status: StatusOK, Detail: fmt.Sprintf("%d/%d approved", len(approved), len(merged))}
}

// failOpen auto-approves every raw question with a fixed moderate score when
// the scoring call or its parsing fails.
func (qv *QuestionValidator) failOpen(state *WorkflowState, cause error) StageOutcome {
	VerboseLog("Error in validator, auto-approving %d questions: %v", len(state.RawGeneratedQuestions), cause)

	validated := make([]Question, 0, len(state.RawGeneratedQuestions))
	for i := range state.RawGeneratedQuestions {
		score := fallbackScore
		state.RawGeneratedQuestions[i].ValidationScore = &score
		state.RawGeneratedQuestions[i].Feedback = fallbackFeedback
		validated = append(validated, state.RawGeneratedQuestions[i])
	}
	state.ValidatedQuestions = validated

	return StageOutcome{Stage: StageValidate, Status: StatusFallback, Detail: cause.Error()}
}

func (qv *QuestionValidator) buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are an expert educational content validator. Evaluate each question on:\n\n")
	sb.WriteString("1. Relevance (40%): Does it match the topic, chapter, and subject?\n")
	sb.WriteString("2. Difficulty Match (30%): Does it align with the target difficulty level?\n")
	sb.WriteString("3. Clarity (20%): Is it unambiguous and well-structured?\n")
	sb.WriteString("4. Diversity (10%): Does it cover unique aspects?\n\n")

	sb.WriteString("For EACH question, provide a JSON object:\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "validation_score": 0.85,` + "\n")
	sb.WriteString(`  "feedback": "Specific feedback on strengths and issues",` + "\n")
	sb.WriteString(`  "approved": true` + "\n")
	sb.WriteString("}\n")
	sb.WriteString("where validation_score is between 0.0 and 1.0 and approved is true if the score >= 0.7.\n\n")

	sb.WriteString("Return as a JSON array matching the order of input questions.\n")
	sb.WriteString("Also validate that LaTeX formatting is correct and properly formatted.")

	return sb.String()
}

func (qv *QuestionValidator) buildUserPrompt(inputs UserInputs, itemsJSON string) string {
	var sb strings.Builder

	sb.WriteString("Validate these questions for:\n")
	sb.WriteString(fmt.Sprintf("Topic: %s\n", inputs.Topic))
	sb.WriteString(fmt.Sprintf("Chapter: %s\n", inputs.Chapter))
	sb.WriteString(fmt.Sprintf("Subject: %s\n", inputs.Subject))
	sb.WriteString(fmt.Sprintf("Class: %s\n", inputs.Class))
	sb.WriteString(fmt.Sprintf("Difficulty: %d/5\n\n", inputs.Difficulty))

	sb.WriteString("Questions to validate:\n")
	sb.WriteString(itemsJSON)
	sb.WriteString("\n\nProvide validation as JSON array.")

	return sb.String()
}
