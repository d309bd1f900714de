package papergen

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ApprovalThreshold is the validation score cutoff separating approved
// questions from rejected ones.
const ApprovalThreshold = 0.7

// QuestionType selects between multiple-choice and free-answer questions.
type QuestionType string

const (
	QuestionTypeObjective   QuestionType = "Objective"
	QuestionTypeDescriptive QuestionType = "Descriptive"
)

// ChoiceType is only meaningful for objective questions.
type ChoiceType string

const (
	ChoiceTypeSingle   ChoiceType = "Single Choice"
	ChoiceTypeMultiple ChoiceType = "Multiple Choice"
)

// UserInputs is the immutable per-run configuration selected by the user.
type UserInputs struct {
	Class        string       `json:"class" validate:"required"`
	Subject      string       `json:"subject" validate:"required"`
	Chapter      string       `json:"chapter" validate:"required"`
	Topic        string       `json:"topic" validate:"required"`
	NumQuestions int          `json:"num_questions" validate:"required,min=1,max=50"`
	Difficulty   int          `json:"difficulty" validate:"required,min=1,max=5"`
	QuestionType QuestionType `json:"question_type" validate:"required,oneof=Objective Descriptive"`
	ChoiceType   ChoiceType   `json:"choice_type" validate:"omitempty,oneof='Single Choice' 'Multiple Choice'"`
}

var inputValidator = validator.New()

// Validate checks field presence and bounds before a pipeline run.
func (ui UserInputs) Validate() error {
	return inputValidator.Struct(ui)
}

// Question is a single generated question, carrying both a plain text and a
// LaTeX rendering. ValidationScore and Feedback stay nil/empty until the
// validation stage runs.
type Question struct {
	Question           string   `json:"question"`
	QuestionLaTeX      string   `json:"question_latex"`
	Options            []string `json:"options,omitempty"`
	OptionsLaTeX       []string `json:"options_latex,omitempty"`
	CorrectAnswer      string   `json:"correct_answer,omitempty"`
	CorrectAnswerLaTeX string   `json:"correct_answer_latex,omitempty"`
	Difficulty         int      `json:"difficulty,omitempty"`
	ValidationScore    *float64 `json:"validation_score,omitempty"`
	Feedback           string   `json:"feedback,omitempty"`
}

// Approved reports whether the question has been scored at or above the
// approval threshold.
func (q Question) Approved() bool {
	return q.ValidationScore != nil && *q.ValidationScore >= ApprovalThreshold
}

// Stage identifies a pipeline stage.
type Stage string

const (
	StageRetrieve Stage = "retrieve_context"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageFormat   Stage = "format_output"
)

// StageStatus distinguishes a clean stage pass from the degraded and
// fallback paths every stage carries.
type StageStatus string

const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusFallback StageStatus = "fallback"
)

// StageOutcome records how a single stage execution ended.
type StageOutcome struct {
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// WorkflowState is the single mutable aggregate threaded through every
// pipeline stage. One run owns its state exclusively; separate runs never
// share an instance.
type WorkflowState struct {
	RunID                 string         `json:"run_id"`
	UserInputs            UserInputs     `json:"user_inputs"`
	ContextSnippets       []string       `json:"context_snippets"`
	RawGeneratedQuestions []Question     `json:"raw_generated_questions"`
	ValidatedQuestions    []Question     `json:"validated_questions"`
	RetryCount            int            `json:"retry_count"`
	Output                string         `json:"output"`
	OutputLaTeX           string         `json:"output_latex"`
	Outcomes              []StageOutcome `json:"stage_outcomes,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
}
