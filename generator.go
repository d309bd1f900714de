package papergen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// noContextMarker replaces the joined snippets when retrieval came back
// empty, so the model knows to fall back to general knowledge.
const noContextMarker = "No specific context available. Use general knowledge."

// QuestionGenerator produces candidate questions from the user inputs and
// retrieved context. Any invocation or parse failure degrades to an empty
// candidate list; the pipeline proceeds and validation handles the empty
// input.
type QuestionGenerator struct {
	client ChatCompleter
	model  string
}

// NewQuestionGenerator creates a generator backed by the given chat client.
func NewQuestionGenerator(client ChatCompleter, model string) *QuestionGenerator {
	return &QuestionGenerator{
		client: client,
		model:  model,
	}
}

// Generate overwrites state.RawGeneratedQuestions with freshly generated
// candidates. Elements that are not JSON objects or miss the plain/LaTeX
// question pair are dropped silently, order preserved.
func (qg *QuestionGenerator) Generate(ctx context.Context, state *WorkflowState, logger *RunLogger) StageOutcome {
	inputs := state.UserInputs
	VerboseLog("Generating %d questions for topic: %s", inputs.NumQuestions, inputs.Topic)

	systemPrompt := qg.buildSystemPrompt(state.ContextSnippets, inputs.Difficulty)
	userPrompt := qg.buildUserPrompt(inputs)

	if logger != nil {
		logger.LogLLMRequest(StageGenerate, systemPrompt+"\n\n"+userPrompt)
	}

	resp, err := qg.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       qg.model,
			Temperature: 0.7,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
		},
	)
	if err != nil {
		state.RawGeneratedQuestions = []Question{}
		VerboseLog("Error in generator: %v", err)
		return StageOutcome{Stage: StageGenerate, Status: StatusDegraded, Detail: err.Error()}
	}

	content := firstChoiceContent(resp)
	if logger != nil {
		logger.LogLLMResponse(StageGenerate, content)
	}

	questions, err := parseGeneratedQuestions(content)
	if err != nil {
		state.RawGeneratedQuestions = []Question{}
		VerboseLog("JSON parsing error in generator: %v", err)
		return StageOutcome{Stage: StageGenerate, Status: StatusDegraded, Detail: fmt.Sprintf("parse failure: %v", err)}
	}

	state.RawGeneratedQuestions = questions
	VerboseLog("Generated %d questions successfully", len(questions))
	return StageOutcome{Stage: StageGenerate, Status: StatusOK, Detail: fmt.Sprintf("%d questions", len(questions))}
}

// parseGeneratedQuestions strips an optional code fence, parses the JSON
// array, and keeps only object elements carrying both a question and its
// LaTeX counterpart.
func parseGeneratedQuestions(content string) ([]Question, error) {
	content = stripCodeFence(content)

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(content), &elems); err != nil {
		return nil, fmt.Errorf("failed to parse question array: %w", err)
	}

	questions := make([]Question, 0, len(elems))
	for _, raw := range elems {
		var q Question
		if err := json.Unmarshal(raw, &q); err != nil {
			continue
		}
		if q.Question == "" || q.QuestionLaTeX == "" {
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (qg *QuestionGenerator) buildSystemPrompt(snippets []string, difficulty int) string {
	contextText := strings.Join(snippets, "\n")
	if contextText == "" {
		contextText = noContextMarker
	}

	var sb strings.Builder

	sb.WriteString("You are an expert question paper generator for educational assessments.\n")
	sb.WriteString("Your task is to generate high-quality questions that match the specified difficulty level and type.\n")
	sb.WriteString("You MUST generate questions in BOTH plain text AND LaTeX format.\n\n")

	sb.WriteString("Difficulty Level Guidelines:\n")
	sb.WriteString("- Level 1 (Easy): Basic recall, definitions, simple calculations\n")
	sb.WriteString("- Level 2 (Moderate): Understanding concepts, straightforward applications\n")
	sb.WriteString("- Level 3 (Medium): Problem-solving, multi-step solutions\n")
	sb.WriteString("- Level 4 (Difficult): Complex applications, critical thinking\n")
	sb.WriteString("- Level 5 (Extremely Difficult): Advanced problem-solving, synthesis of multiple concepts\n\n")

	sb.WriteString("Context from syllabus:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\n")

	sb.WriteString("Generate questions as a JSON array with this EXACT structure:\n")
	sb.WriteString("[\n")
	sb.WriteString("  {\n")
	sb.WriteString(`    "question": "Plain text question here",` + "\n")
	sb.WriteString(`    "question_latex": "LaTeX formatted question here (use \\text for text, proper math symbols)",` + "\n")
	sb.WriteString(`    "options": ["A) option1", "B) option2", "C) option3", "D) option4"] or null for descriptive,` + "\n")
	sb.WriteString(`    "options_latex": ["A) LaTeX option1", "B) LaTeX option2", "C) LaTeX option3", "D) LaTeX option4"] or null,` + "\n")
	sb.WriteString(`    "correct_answer": "B) option2" or "Brief answer for descriptive",` + "\n")
	sb.WriteString(`    "correct_answer_latex": "LaTeX formatted answer",` + "\n")
	sb.WriteString(fmt.Sprintf(`    "difficulty": %d`+"\n", difficulty))
	sb.WriteString("  }\n")
	sb.WriteString("]\n\n")

	sb.WriteString("CRITICAL REQUIREMENTS:\n")
	sb.WriteString("1. Ensure questions are relevant to the topic and aligned with difficulty\n")
	sb.WriteString("2. For objective questions, include exactly 4 options with one correct answer\n")
	sb.WriteString("3. For descriptive questions, provide a model answer\n")
	sb.WriteString("4. Use proper LaTeX syntax: \\frac{}{}, \\sqrt{}, x^2, \\text{} for text, etc.\n")
	sb.WriteString("5. Return ONLY valid JSON, no additional text\n")
	sb.WriteString("6. Generate diverse questions covering different aspects of the topic\n")

	return sb.String()
}

func (qg *QuestionGenerator) buildUserPrompt(inputs UserInputs) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d %s questions on the topic %q from chapter %q\n",
		inputs.NumQuestions, inputs.QuestionType, inputs.Topic, inputs.Chapter))
	sb.WriteString(fmt.Sprintf("for %s %s.\n\n", inputs.Class, inputs.Subject))
	sb.WriteString(fmt.Sprintf("Difficulty: %d/5\n", inputs.Difficulty))

	if inputs.QuestionType == QuestionTypeObjective {
		sb.WriteString(fmt.Sprintf("Choice Type: %s\n", inputs.ChoiceType))
	}

	sb.WriteString("\nProvide output as a JSON array.")

	return sb.String()
}
