package papergen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredQuestion(question, latex string, options, optionsLaTeX []string) Question {
	score := 0.8
	return Question{
		Question:        question,
		QuestionLaTeX:   latex,
		Options:         options,
		OptionsLaTeX:    optionsLaTeX,
		ValidationScore: &score,
		Feedback:        "looks fine",
	}
}

func TestFormatPlainTextLayout(t *testing.T) {
	state := &WorkflowState{
		UserInputs: sampleInputs(),
		ValidatedQuestions: []Question{
			scoredQuestion("What is the capital of France?", `\text{What is the capital of France?}`,
				[]string{"A) Paris", "B) Rome", "C) Berlin", "D) Madrid"}, nil),
			scoredQuestion("Define photosynthesis.", `\text{Define photosynthesis.}`, nil, nil),
		},
	}

	outcome := FormatOutputs(state)
	assert.Equal(t, StatusOK, outcome.Status)

	lines := strings.Split(state.Output, "\n")
	banner := strings.Repeat("=", 80)
	require.GreaterOrEqual(t, len(lines), 7)
	assert.Equal(t, banner, lines[0])
	assert.Equal(t, "QUESTION PAPER", lines[1])
	assert.Equal(t, "Class: Class 10 | Subject: Math", lines[2])
	assert.Equal(t, "Chapter: Algebra | Topic: Quadratic Equations", lines[3])
	assert.Equal(t, "Difficulty Level: 3/5 | Type: Objective", lines[4])
	assert.Equal(t, banner, lines[5])

	assert.Contains(t, state.Output, "1. What is the capital of France?")
	assert.Contains(t, state.Output, "2. Define photosynthesis.")
	// Options are indented three spaces with their labels intact.
	assert.Contains(t, state.Output, "\n   A) Paris\n")
	assert.Contains(t, state.Output, "\n   D) Madrid\n")
}

func TestFormatLaTeXDocument(t *testing.T) {
	state := &WorkflowState{
		UserInputs: sampleInputs(),
		ValidatedQuestions: []Question{
			scoredQuestion("Solve x^2 = 4", `Solve $x^2 = 4$`,
				[]string{"A) 2", "B) -2", "C) ±2", "D) 4"},
				[]string{"A) $2$", "B) $-2$", "C) $\\pm 2$", "D) $4$"}),
		},
	}

	FormatOutputs(state)

	lines := strings.Split(state.OutputLaTeX, "\n")
	assert.Equal(t, `\documentclass[12pt]{article}`, lines[0])
	assert.Equal(t, `\end{document}`, lines[len(lines)-1])

	assert.Contains(t, state.OutputLaTeX, `\usepackage{amsmath}`)
	assert.Contains(t, state.OutputLaTeX, `\geometry{margin=1in}`)
	assert.Contains(t, state.OutputLaTeX, `\author{Class 10 - Math}`)
	assert.Contains(t, state.OutputLaTeX, `\section*{Chapter: Algebra}`)
	assert.Contains(t, state.OutputLaTeX, `\subsection*{Topic: Quadratic Equations}`)
	assert.Contains(t, state.OutputLaTeX, `\item Solve $x^2 = 4$`)

	// Option labels are stripped; the inner enumerate letters them.
	assert.Contains(t, state.OutputLaTeX, `  \item $\pm 2$`)
	assert.NotContains(t, state.OutputLaTeX, `C) $\pm 2$`)
}

func TestFormatLaTeXFallsBackToPlainFields(t *testing.T) {
	// A question missing its LaTeX fields still renders from the plain ones.
	state := &WorkflowState{
		UserInputs: sampleInputs(),
		ValidatedQuestions: []Question{
			scoredQuestion("Name the largest planet.", "",
				[]string{"A) Earth", "B) Jupiter"}, nil),
		},
	}

	FormatOutputs(state)

	assert.Contains(t, state.OutputLaTeX, `\item Name the largest planet.`)
	assert.Contains(t, state.OutputLaTeX, `  \item Jupiter`)
}

func TestFormatOutputsEmptySet(t *testing.T) {
	state := &WorkflowState{UserInputs: sampleInputs()}

	outcome := FormatOutputs(state)

	assert.Equal(t, StatusDegraded, outcome.Status)
	assert.Equal(t, noQuestionsMessage, state.Output)
	assert.Equal(t, noQuestionsMessageLaTeX, state.OutputLaTeX)
}

func TestStripOptionLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A) Paris", "Paris"},
		{"B) $x^2$", "$x^2$"},
		{"D) 4", "4"},
		{"Rome", "Rome"},
		{"AB", "AB"},
		{"", ""},
		{"A) ", "A) "}, // too short to carry content after the label
		{"No) but this matches nothing", "No) but this matches nothing"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stripOptionLabel(tt.in), "input %q", tt.in)
	}
}
