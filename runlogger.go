package papergen

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLogger writes a per-run trace file covering every LLM request and
// response plus the outcome of each stage.
type RunLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewRunLogger creates a trace log for one pipeline run under dir.
func NewRunLogger(dir, runID string, inputs UserInputs) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", runID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &RunLogger{
		file:  file,
		runID: runID,
	}

	logger.Logf("=== Paper Generation Log ===\n")
	logger.Logf("Run ID: %s\n", runID)
	logger.Logf("Class: %s, Subject: %s\n", inputs.Class, inputs.Subject)
	logger.Logf("Chapter: %s, Topic: %s\n", inputs.Chapter, inputs.Topic)
	logger.Logf("Questions: %d, Difficulty: %d/5, Type: %s\n", inputs.NumQuestions, inputs.Difficulty, inputs.QuestionType)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (rl *RunLogger) Logf(format string, args ...interface{}) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, args...)

	fmt.Fprintf(rl.file, "[%s] %s", timestamp, message)
	rl.file.Sync()
}

// LogLLMRequest logs the prompt sent for a stage
func (rl *RunLogger) LogLLMRequest(stage Stage, prompt string) {
	rl.Logf("=== LLM REQUEST (%s) ===\n", stage)
	rl.Logf("Prompt:\n%s\n", prompt)
	rl.Logf("=====================\n\n")
}

// LogLLMResponse logs the raw response received for a stage
func (rl *RunLogger) LogLLMResponse(stage Stage, response string) {
	rl.Logf("=== LLM RESPONSE (%s) ===\n", stage)
	rl.Logf("Response:\n%s\n", response)
	rl.Logf("======================\n\n")
}

// LogStageOutcome logs how a stage execution ended
func (rl *RunLogger) LogStageOutcome(outcome StageOutcome) {
	rl.Logf("Stage %s: %s - %s\n", outcome.Stage, outcome.Status, outcome.Detail)
}

// Close writes the trailer and closes the log file
func (rl *RunLogger) Close() error {
	rl.Logf("=== Paper Generation Complete ===\n")
	rl.Logf("Completed: %s\n", time.Now().Format(time.RFC3339))
	rl.Logf("=============================\n")

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file != nil {
		err := rl.file.Close()
		rl.file = nil
		return err
	}
	return nil
}
