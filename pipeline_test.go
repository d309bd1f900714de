package papergen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChat replays canned responses in call order.
type scriptedChat struct {
	responses []scriptedResponse
	calls     []openai.ChatCompletionRequest
}

type scriptedResponse struct {
	content string
	err     error
}

func (s *scriptedChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls = append(s.calls, req)
	if len(s.responses) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no scripted response left")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if next.err != nil {
		return openai.ChatCompletionResponse{}, next.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: next.content}},
		},
	}, nil
}

func (s *scriptedChat) systemPrompt(call int) string {
	return s.calls[call].Messages[0].Content
}

// fakeIndex is a scripted ContextIndex.
type fakeIndex struct {
	matches     []ContextMatch
	err         error
	lastQuery   string
	lastFilters map[string]string
	lastTopK    int
}

func (f *fakeIndex) Query(_ context.Context, query string, filters map[string]string, topK int) ([]ContextMatch, error) {
	f.lastQuery = query
	f.lastFilters = filters
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func sampleInputs() UserInputs {
	return UserInputs{
		Class:        "Class 10",
		Subject:      "Math",
		Chapter:      "Algebra",
		Topic:        "Quadratic Equations",
		NumQuestions: 5,
		Difficulty:   3,
		QuestionType: QuestionTypeObjective,
		ChoiceType:   ChoiceTypeSingle,
	}
}

func sampleQuestionsJSON(t *testing.T, n int) string {
	t.Helper()
	qs := make([]map[string]interface{}, n)
	for i := range qs {
		qs[i] = map[string]interface{}{
			"question":             fmt.Sprintf("Solve equation number %d", i+1),
			"question_latex":       fmt.Sprintf(`Solve $x^2 - %dx + 1 = 0$`, i+1),
			"options":              []string{"A) 0", "B) 1", "C) 2", "D) 3"},
			"options_latex":        []string{"A) $0$", "B) $1$", "C) $2$", "D) $3$"},
			"correct_answer":       "B) 1",
			"correct_answer_latex": "B) $1$",
			"difficulty":           3,
		}
	}
	data, err := json.Marshal(qs)
	require.NoError(t, err)
	return string(data)
}

func scoresJSON(t *testing.T, scores ...float64) string {
	t.Helper()
	verdicts := make([]map[string]interface{}, len(scores))
	for i, s := range scores {
		verdicts[i] = map[string]interface{}{
			"validation_score": s,
			"feedback":         "looks fine",
			"approved":         s >= ApprovalThreshold,
		}
	}
	data, err := json.Marshal(verdicts)
	require.NoError(t, err)
	return string(data)
}

func repeatScores(score float64, n int) []float64 {
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = score
	}
	return scores
}

func TestPipelineRetryTriggeredOnLowPassRate(t *testing.T) {
	// 3/10 pass on the first cycle, 6/10 on the second.
	firstScores := append(repeatScores(0.8, 3), repeatScores(0.3, 7)...)
	secondScores := append(repeatScores(0.9, 6), repeatScores(0.2, 4)...)

	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 10)},
		{content: scoresJSON(t, firstScores...)},
		{content: sampleQuestionsJSON(t, 10)},
		{content: scoresJSON(t, secondScores...)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	assert.Equal(t, 1, state.RetryCount)
	assert.Len(t, chat.calls, 4)
	assert.Len(t, state.RawGeneratedQuestions, 10)
	assert.Len(t, state.ValidatedQuestions, 6)
	for _, q := range state.ValidatedQuestions {
		require.NotNil(t, q.ValidationScore)
		assert.GreaterOrEqual(t, *q.ValidationScore, ApprovalThreshold)
	}
	assert.NotEmpty(t, state.Output)
	assert.NotEmpty(t, state.OutputLaTeX)
}

func TestPipelineNoRetryAtSufficientPassRate(t *testing.T) {
	scores := append(repeatScores(0.85, 6), repeatScores(0.4, 4)...)

	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 10)},
		{content: scoresJSON(t, scores...)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	assert.Equal(t, 0, state.RetryCount)
	assert.Len(t, chat.calls, 2)
	assert.Len(t, state.ValidatedQuestions, 6)

	// Questions are numbered 1 through 6 in the plain text output.
	for i := 1; i <= 6; i++ {
		assert.Contains(t, state.Output, fmt.Sprintf("%d. ", i))
	}
	assert.NotContains(t, state.Output, "7. ")
}

func TestPipelineRetryCapRespected(t *testing.T) {
	// Both cycles pass only 1/5; the second low pass rate must not retry
	// again.
	scores := append(repeatScores(0.9, 1), repeatScores(0.1, 4)...)

	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 5)},
		{content: scoresJSON(t, scores...)},
		{content: sampleQuestionsJSON(t, 5)},
		{content: scoresJSON(t, scores...)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	assert.Equal(t, 1, state.RetryCount)
	assert.Len(t, chat.calls, 4)
	assert.Len(t, state.ValidatedQuestions, 1)
	assert.NotEmpty(t, state.Output)
}

func TestPipelineGenerationFailureRendersEmptyResult(t *testing.T) {
	chat := &scriptedChat{responses: []scriptedResponse{
		{err: errors.New("rate limited")},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	// Validation short-circuits on empty input, so only one LLM call
	// happened, and no retry was attempted.
	assert.Len(t, chat.calls, 1)
	assert.Equal(t, 0, state.RetryCount)
	assert.Empty(t, state.RawGeneratedQuestions)
	assert.Empty(t, state.ValidatedQuestions)
	assert.Equal(t, noQuestionsMessage, state.Output)
	assert.Equal(t, noQuestionsMessageLaTeX, state.OutputLaTeX)
}

func TestPipelineValidationFailureAutoApproves(t *testing.T) {
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 4)},
		{err: errors.New("validator unavailable")},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	// Fail-open: every raw question is approved with the fixed score.
	assert.Len(t, state.ValidatedQuestions, len(state.RawGeneratedQuestions))
	for _, q := range state.ValidatedQuestions {
		require.NotNil(t, q.ValidationScore)
		assert.Equal(t, fallbackScore, *q.ValidationScore)
		assert.Equal(t, fallbackFeedback, q.Feedback)
	}
	// Full pass rate means no retry.
	assert.Equal(t, 0, state.RetryCount)
	assert.NotEmpty(t, state.Output)
}

func TestPipelineRetrievalFailureUsesNoContextMarker(t *testing.T) {
	index := &fakeIndex{err: errors.New("index down")}
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 2)},
		{content: scoresJSON(t, 0.8, 0.9)},
	}}

	p := NewPipeline(chat, index, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	assert.Empty(t, state.ContextSnippets)
	assert.Contains(t, chat.systemPrompt(0), noContextMarker)
	assert.Len(t, state.ValidatedQuestions, 2)
}

func TestPipelineContextFlowsIntoGenerationPrompt(t *testing.T) {
	index := &fakeIndex{matches: []ContextMatch{
		{Text: "A quadratic equation has degree two.", Score: 0.93},
		{Text: "The discriminant decides the root count.", Score: 0.88},
	}}
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 2)},
		{content: scoresJSON(t, 0.8, 0.9)},
	}}

	p := NewPipeline(chat, index, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	assert.Equal(t, "Quadratic Equations Algebra", index.lastQuery)
	assert.Equal(t, map[string]string{"class": "Class 10", "subject": "Math"}, index.lastFilters)
	assert.Equal(t, 3, index.lastTopK)

	assert.Equal(t, []string{
		"A quadratic equation has degree two.",
		"The discriminant decides the root count.",
	}, state.ContextSnippets)
	assert.Contains(t, chat.systemPrompt(0), "The discriminant decides the root count.")
	assert.NotContains(t, chat.systemPrompt(0), noContextMarker)
}

func TestPipelineObjectivePromptCarriesChoiceType(t *testing.T) {
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 1)},
		{content: scoresJSON(t, 0.8)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	p.Run(context.Background(), sampleInputs())

	userPrompt := chat.calls[0].Messages[1].Content
	assert.Contains(t, userPrompt, "Choice Type: Single Choice")
}

func TestPipelineDescriptivePromptOmitsChoiceType(t *testing.T) {
	inputs := sampleInputs()
	inputs.QuestionType = QuestionTypeDescriptive
	inputs.ChoiceType = ""

	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 1)},
		{content: scoresJSON(t, 0.8)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	p.Run(context.Background(), inputs)

	userPrompt := chat.calls[0].Messages[1].Content
	assert.NotContains(t, userPrompt, "Choice Type")
}

func TestShouldRetry(t *testing.T) {
	p := NewPipeline(&scriptedChat{}, nil, "gpt-4o")

	tests := []struct {
		name       string
		raw        int
		validated  int
		retryCount int
		want       bool
	}{
		{"empty raw never retries", 0, 0, 0, false},
		{"low pass rate retries", 10, 3, 0, true},
		{"boundary pass rate does not retry", 10, 5, 0, false},
		{"high pass rate does not retry", 10, 6, 0, false},
		{"retry cap respected", 5, 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &WorkflowState{
				RawGeneratedQuestions: make([]Question, tt.raw),
				ValidatedQuestions:    make([]Question, tt.validated),
				RetryCount:            tt.retryCount,
			}
			assert.Equal(t, tt.want, p.shouldRetry(state))
		})
	}
}

func TestUserInputsValidate(t *testing.T) {
	valid := sampleInputs()
	assert.NoError(t, valid.Validate())

	tooMany := sampleInputs()
	tooMany.NumQuestions = 51
	assert.Error(t, tooMany.Validate())

	badDifficulty := sampleInputs()
	badDifficulty.Difficulty = 6
	assert.Error(t, badDifficulty.Validate())

	badType := sampleInputs()
	badType.QuestionType = "Essay"
	assert.Error(t, badType.Validate())

	missingTopic := sampleInputs()
	missingTopic.Topic = ""
	assert.Error(t, missingTopic.Validate())
}

func TestStageOutcomesRecorded(t *testing.T) {
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 2)},
		{content: scoresJSON(t, 0.8, 0.9)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	require.Len(t, state.Outcomes, 4)
	stages := make([]Stage, 0, len(state.Outcomes))
	for _, o := range state.Outcomes {
		stages = append(stages, o.Stage)
	}
	assert.Equal(t, []Stage{StageRetrieve, StageGenerate, StageValidate, StageFormat}, stages)

	// No index configured: retrieval is degraded, everything else clean.
	assert.Equal(t, StatusDegraded, state.Outcomes[0].Status)
	assert.Equal(t, StatusOK, state.Outcomes[1].Status)
	assert.Equal(t, StatusOK, state.Outcomes[2].Status)
	assert.Equal(t, StatusOK, state.Outcomes[3].Status)
}

func TestPipelineOutputIsTerminalAndRepeatable(t *testing.T) {
	chat := &scriptedChat{responses: []scriptedResponse{
		{content: sampleQuestionsJSON(t, 3)},
		{content: scoresJSON(t, 0.8, 0.75, 0.9)},
	}}

	p := NewPipeline(chat, nil, "gpt-4o")
	state := p.Run(context.Background(), sampleInputs())

	firstOutput := state.Output
	firstLaTeX := state.OutputLaTeX

	// Formatting is deterministic over the same validated set.
	FormatOutputs(state)
	assert.Equal(t, firstOutput, state.Output)
	assert.Equal(t, firstLaTeX, state.OutputLaTeX)

	if !strings.Contains(state.Output, "QUESTION PAPER") {
		t.Fatalf("expected banner in output, got:\n%s", state.Output)
	}
}
