package papergen

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// pipelineState is the position of a run in the stage machine. The only
// non-linear edge is Validating back to Generating, taken at most once.
type pipelineState int

const (
	stateRetrieving pipelineState = iota
	stateGenerating
	stateValidating
	stateFormatting
)

// Pipeline drives one question paper generation run through its four
// stages. The external capabilities are injected at construction; there are
// no ambient clients. A Pipeline is cheap to build, so callers that want a
// per-run logger create one Pipeline per run.
type Pipeline struct {
	retriever *ContextRetriever
	generator *QuestionGenerator
	validator *QuestionValidator

	logger      *RunLogger
	logDir      string
	callTimeout time.Duration
}

// NewPipeline wires a pipeline to the given chat client and context index.
// A nil index disables retrieval (the run proceeds without context).
func NewPipeline(client ChatCompleter, index ContextIndex, model string) *Pipeline {
	return &Pipeline{
		retriever: NewContextRetriever(index),
		generator: NewQuestionGenerator(client, model),
		validator: NewQuestionValidator(client, model),
	}
}

// SetLogger attaches a per-run logger recording LLM traffic and stage
// outcomes.
func (p *Pipeline) SetLogger(logger *RunLogger) {
	p.logger = logger
}

// SetLogDir makes every run create its own trace log, named after the run
// ID, under dir. Ignored when an explicit logger is attached.
func (p *Pipeline) SetLogDir(dir string) {
	p.logDir = dir
}

// SetCallTimeout bounds each external capability invocation. Zero disables
// the bound; a hung call then blocks the run until ctx is done.
func (p *Pipeline) SetCallTimeout(d time.Duration) {
	p.callTimeout = d
}

// Run executes the full pipeline for one set of user inputs and returns the
// completed state. It always terminates, in at most two generation and
// validation cycles, and never returns a state without both outputs set:
// every stage failure degrades inside its own stage.
func (p *Pipeline) Run(ctx context.Context, inputs UserInputs) *WorkflowState {
	state := &WorkflowState{
		RunID:                 uuid.NewString(),
		UserInputs:            inputs,
		ContextSnippets:       []string{},
		RawGeneratedQuestions: []Question{},
		ValidatedQuestions:    []Question{},
		CreatedAt:             time.Now(),
	}

	log.Printf("Starting paper generation run %s: %s / %s / %s / %s",
		state.RunID, inputs.Class, inputs.Subject, inputs.Chapter, inputs.Topic)

	logger := p.logger
	if logger == nil && p.logDir != "" {
		l, err := NewRunLogger(p.logDir, state.RunID, inputs)
		if err != nil {
			log.Printf("Failed to create run logger for %s: %v", state.RunID, err)
			// Continue without tracing rather than failing the run
		} else {
			logger = l
			defer l.Close()
		}
	}

	current := stateRetrieving
	for {
		switch current {
		case stateRetrieving:
			p.record(state, logger, p.runStage(ctx, state, p.retriever.Retrieve))
			current = stateGenerating

		case stateGenerating:
			p.record(state, logger, p.runLLMStage(ctx, state, logger, p.generator.Generate))
			current = stateValidating

		case stateValidating:
			p.record(state, logger, p.runLLMStage(ctx, state, logger, p.validator.Validate))
			if p.shouldRetry(state) {
				state.RetryCount++
				log.Printf("Run %s: pass rate below 50%%, retrying generation", state.RunID)
				current = stateGenerating
			} else {
				current = stateFormatting
			}

		case stateFormatting:
			p.record(state, logger, FormatOutputs(state))
			log.Printf("Run %s complete: %d raw, %d validated, %d retries",
				state.RunID, len(state.RawGeneratedQuestions), len(state.ValidatedQuestions), state.RetryCount)
			return state
		}
	}
}

// shouldRetry is the single conditional edge of the stage machine: retry
// generation when fewer than half the raw questions passed validation and no
// retry has happened yet. An empty raw set never retries; formatting will
// render the empty-result message instead.
func (p *Pipeline) shouldRetry(state *WorkflowState) bool {
	raw := state.RawGeneratedQuestions
	if len(raw) == 0 {
		return false
	}

	passRate := float64(len(state.ValidatedQuestions)) / float64(len(raw))
	return passRate < 0.5 && state.RetryCount == 0
}

func (p *Pipeline) runStage(ctx context.Context, state *WorkflowState, stage func(context.Context, *WorkflowState) StageOutcome) StageOutcome {
	stageCtx, cancel := p.stageContext(ctx)
	defer cancel()
	return stage(stageCtx, state)
}

func (p *Pipeline) runLLMStage(ctx context.Context, state *WorkflowState, logger *RunLogger, stage func(context.Context, *WorkflowState, *RunLogger) StageOutcome) StageOutcome {
	stageCtx, cancel := p.stageContext(ctx)
	defer cancel()
	return stage(stageCtx, state, logger)
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.callTimeout)
}

func (p *Pipeline) record(state *WorkflowState, logger *RunLogger, outcome StageOutcome) {
	state.Outcomes = append(state.Outcomes, outcome)
	if logger != nil {
		logger.LogStageOutcome(outcome)
	}
	VerboseLog("Stage %s: %s (%s)", outcome.Stage, outcome.Status, outcome.Detail)
}
