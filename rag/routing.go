package rag

// Step names a node in the agent workflow.
type Step string

// Workflow steps.
const (
	StepRouter      Step = "router"
	StepRetrieval   Step = "retrieval"
	StepGraphEnrich Step = "graph_enrich"
	StepGrader      Step = "grader"
	StepRewrite     Step = "rewrite"
	StepWebSearch   Step = "web_search"
	StepSynthesis   Step = "synthesis"
)

// Steps lists every step in pipeline order.
var Steps = []Step{
	StepRouter,
	StepRetrieval,
	StepGraphEnrich,
	StepGrader,
	StepRewrite,
	StepWebSearch,
	StepSynthesis,
}

var stepLabels = map[Step]string{
	StepRouter:      "Classifying intent...",
	StepRetrieval:   "Searching knowledge base...",
	StepGraphEnrich: "Consulting knowledge graph...",
	StepGrader:      "Evaluating document relevance...",
	StepRewrite:     "Rewriting query...",
	StepWebSearch:   "Searching the web...",
	StepSynthesis:   "Generating response...",
}

// Label is the progress text shown while the step runs.
func (s Step) Label() string {
	if label, ok := stepLabels[s]; ok {
		return label
	}
	return string(s)
}

// RouteAfterRouter sends knowledge searches to retrieval and everything else
// straight to synthesis.
func RouteAfterRouter(s State) Step {
	if s.Intent == IntentKnowledgeSearch {
		return StepRetrieval
	}
	return StepSynthesis
}

// RouteAfterGrader picks the corrective action for the current grade.
//
// Relevant evidence goes to synthesis. Otherwise the query is rewritten while
// iterations remain, then the web fallback runs once. A run that has already
// used the web fallback goes to synthesis with what it has.
func RouteAfterGrader(s State) Step {
	if s.Grade == GradeRelevant {
		return StepSynthesis
	}
	if s.Iteration < s.MaxIterations {
		return StepRewrite
	}
	if s.WebResultsUsed {
		return StepSynthesis
	}
	return StepWebSearch
}

// MaxStepsFor is the longest possible run for a rewrite budget: the router,
// maxIterations+1 passes of retrieval, enrichment and grading,
// maxIterations rewrites, the web fallback and synthesis.
func MaxStepsFor(maxIterations int) int {
	return 1 + 3*(maxIterations+1) + maxIterations + 2
}
