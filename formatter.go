package papergen

import (
	"fmt"
	"strings"
)

const (
	noQuestionsMessage      = "No valid questions generated. Please try again."
	noQuestionsMessageLaTeX = "No valid questions generated."
	formattingErrorMessage  = "Error formatting output"
)

// FormatOutputs renders the validated questions into the two terminal
// documents: a plain text paper and a standalone LaTeX paper. It is pure and
// deterministic over the validated questions and user inputs, makes no
// external calls, and never lets a failure escape: a panic during formatting
// replaces both outputs with a fixed error string.
func FormatOutputs(state *WorkflowState) (outcome StageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			state.Output = formattingErrorMessage
			state.OutputLaTeX = formattingErrorMessage
			outcome = StageOutcome{Stage: StageFormat, Status: StatusFallback, Detail: fmt.Sprint(r)}
		}
	}()

	questions := state.ValidatedQuestions
	inputs := state.UserInputs

	if len(questions) == 0 {
		state.Output = noQuestionsMessage
		state.OutputLaTeX = noQuestionsMessageLaTeX
		return StageOutcome{Stage: StageFormat, Status: StatusDegraded, Detail: "no validated questions"}
	}

	state.Output = formatPlainText(questions, inputs)
	state.OutputLaTeX = formatLaTeX(questions, inputs)

	VerboseLog("Output formatted successfully")
	return StageOutcome{Stage: StageFormat, Status: StatusOK, Detail: fmt.Sprintf("%d questions", len(questions))}
}

func formatPlainText(questions []Question, inputs UserInputs) string {
	banner := strings.Repeat("=", 80)

	lines := []string{
		banner,
		"QUESTION PAPER",
		fmt.Sprintf("Class: %s | Subject: %s", inputs.Class, inputs.Subject),
		fmt.Sprintf("Chapter: %s | Topic: %s", inputs.Chapter, inputs.Topic),
		fmt.Sprintf("Difficulty Level: %d/5 | Type: %s", inputs.Difficulty, inputs.QuestionType),
		banner,
		"",
	}

	for i, q := range questions {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, q.Question))
		lines = append(lines, "")

		if len(q.Options) > 0 {
			for _, opt := range q.Options {
				lines = append(lines, "   "+opt)
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

func formatLaTeX(questions []Question, inputs UserInputs) string {
	lines := []string{
		`\documentclass[12pt]{article}`,
		`\usepackage{amsmath}`,
		`\usepackage{amssymb}`,
		`\usepackage{geometry}`,
		`\geometry{margin=1in}`,
		`\title{Question Paper}`,
		fmt.Sprintf(`\author{%s - %s}`, inputs.Class, inputs.Subject),
		`\date{\today}`,
		`\begin{document}`,
		`\maketitle`,
		"",
		fmt.Sprintf(`\section*{Chapter: %s}`, inputs.Chapter),
		fmt.Sprintf(`\subsection*{Topic: %s}`, inputs.Topic),
		fmt.Sprintf(`\textbf{Difficulty Level:} %d/5 \\`, inputs.Difficulty),
		fmt.Sprintf(`\textbf{Question Type:} %s`, inputs.QuestionType),
		"",
		`\begin{enumerate}`,
		"",
	}

	for _, q := range questions {
		questionText := q.QuestionLaTeX
		if questionText == "" {
			questionText = q.Question
		}
		lines = append(lines, `\item `+questionText)
		lines = append(lines, "")

		options := q.OptionsLaTeX
		if len(options) == 0 {
			options = q.Options
		}
		if len(options) > 0 {
			lines = append(lines, `\begin{enumerate}`)
			for _, opt := range options {
				lines = append(lines, `  \item `+stripOptionLabel(opt))
			}
			lines = append(lines, `\end{enumerate}`)
			lines = append(lines, "")
		}
	}

	lines = append(lines, `\end{enumerate}`)
	lines = append(lines, `\end{document}`)

	return strings.Join(lines, "\n")
}

// stripOptionLabel removes a redundant leading "A) " style label (one letter,
// a closing parenthesis, a space) from an option string; the surrounding
// enumerate already letters the entries. Strings not matching the pattern
// pass through unchanged.
func stripOptionLabel(opt string) string {
	if len(opt) > 3 && opt[1] == ')' {
		return opt[3:]
	}
	return opt
}
