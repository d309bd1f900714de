package papergen

import (
	"context"
	"fmt"
	"log"
)

// ContextRetriever looks up syllabus snippets relevant to the requested
// topic and chapter. A broken or missing index never blocks the pipeline;
// the run just proceeds without context.
type ContextRetriever struct {
	index ContextIndex
	topK  int
}

// NewContextRetriever creates a retriever over the given index. A nil index
// is allowed and degrades every retrieval to an empty snippet list.
func NewContextRetriever(index ContextIndex) *ContextRetriever {
	return &ContextRetriever{
		index: index,
		topK:  3,
	}
}

// Retrieve fills state.ContextSnippets with the top matches for the run's
// topic and chapter, filtered to the matching class and subject. Ranking
// order is preserved; scores and metadata are discarded.
func (cr *ContextRetriever) Retrieve(ctx context.Context, state *WorkflowState) StageOutcome {
	state.ContextSnippets = []string{}

	if cr.index == nil {
		VerboseLog("No context index configured, continuing without context")
		return StageOutcome{Stage: StageRetrieve, Status: StatusDegraded, Detail: "no context index configured"}
	}

	inputs := state.UserInputs
	query := fmt.Sprintf("%s %s", inputs.Topic, inputs.Chapter)
	filters := map[string]string{
		"class":   inputs.Class,
		"subject": inputs.Subject,
	}

	matches, err := cr.index.Query(ctx, query, filters, cr.topK)
	if err != nil {
		log.Printf("Error retrieving context: %v", err)
		return StageOutcome{Stage: StageRetrieve, Status: StatusDegraded, Detail: err.Error()}
	}

	snippets := make([]string, 0, len(matches))
	for _, m := range matches {
		snippets = append(snippets, m.Text)
	}
	state.ContextSnippets = snippets

	VerboseLog("Retrieved %d context snippets", len(snippets))
	return StageOutcome{Stage: StageRetrieve, Status: StatusOK, Detail: fmt.Sprintf("%d snippets", len(snippets))}
}
