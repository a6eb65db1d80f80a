package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestRouter(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies", func(t *testing.T) {
		c := &fakeClassifier{reply: classification{Intent: "Knowledge_Search ", Confidence: 0.85, Reasoning: "asks about policy"}}
		res := (&Router{Classifier: c}).Run(ctx, State{Query: "refund policy?"})
		s := Reduce(State{}, res.Delta)

		if s.Intent != IntentKnowledgeSearch {
			t.Errorf("Intent = %q", s.Intent)
		}
		if s.IntentConfidence != 0.85 {
			t.Errorf("IntentConfidence = %v", s.IntentConfidence)
		}
		want := "Intent classified as 'knowledge_search' with 85.00% confidence. asks about policy"
		if len(s.Reasoning) != 1 || s.Reasoning[0] != want {
			t.Errorf("Reasoning = %q, want %q", s.Reasoning, want)
		}
		if !strings.Contains(c.prompts[0].User, "refund policy?") {
			t.Errorf("prompt does not carry the query: %q", c.prompts[0].User)
		}
	})

	t.Run("normalizes unknown labels and clamps confidence", func(t *testing.T) {
		c := &fakeClassifier{reply: classification{Intent: "weather", Confidence: 1.7}}
		s := Reduce(State{}, (&Router{Classifier: c}).Run(ctx, State{Query: "q"}).Delta)
		if s.Intent != IntentUnknown || s.IntentConfidence != 1 {
			t.Errorf("Intent = %q, confidence = %v", s.Intent, s.IntentConfidence)
		}
	})

	t.Run("failure degrades to unknown", func(t *testing.T) {
		c := &fakeClassifier{err: errors.New("503 overloaded")}
		res := (&Router{Classifier: c}).Run(ctx, State{Query: "q"})
		if res.Err != nil {
			t.Fatalf("Err = %v, want nil", res.Err)
		}
		s := Reduce(State{Intent: IntentGreeting, IntentConfidence: 0.4}, res.Delta)
		if s.Intent != IntentUnknown || s.IntentConfidence != 0 {
			t.Errorf("Intent = %q, confidence = %v", s.Intent, s.IntentConfidence)
		}
		if s.Error != "Router classification failed: 503 overloaded" {
			t.Errorf("Error = %q", s.Error)
		}
	})
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()

	t.Run("above threshold", func(t *testing.T) {
		v := &fakeVectors{matches: []Match{
			goodMatch("refunds within 30 days", 0.2, "policy.pdf"),
			goodMatch("shipping", 0.9, "faq.md"),
		}}
		r := &Retriever{Searcher: v, K: 4, Threshold: 0.65}
		prev := State{Query: "refund?", ShouldDecline: true, DeclineReason: "old", Answer: "old", Error: "old"}
		s := Reduce(prev, r.Run(ctx, prev).Delta)

		if v.ks[0] != 4 || v.queries[0] != "refund?" {
			t.Errorf("search called with %q k=%d", v.queries[0], v.ks[0])
		}
		if len(s.Evidence) != 2 {
			t.Fatalf("Evidence = %+v", s.Evidence)
		}
		if got := *s.Evidence[0].Score; got != 0.9 {
			t.Errorf("score = %v, want 0.9", got)
		}
		if s.Evidence[0].Origin != OriginVector || s.Evidence[0].Metadata["source"] != "policy.pdf" {
			t.Errorf("passage = %+v", s.Evidence[0])
		}
		if s.Confidence != 0.9 {
			t.Errorf("Confidence = %v", s.Confidence)
		}
		if s.ShouldDecline || s.DeclineReason != "" || s.Answer != "" || s.Error != "" {
			t.Errorf("decline state not cleared: %+v", s)
		}
	})

	t.Run("uses rewritten query", func(t *testing.T) {
		v := &fakeVectors{}
		(&Retriever{Searcher: v, Threshold: 0.65}).Run(ctx, State{Query: "a", RewrittenQuery: "b"})
		if v.queries[0] != "b" || v.ks[0] != DefaultRetrievalK {
			t.Errorf("search called with %q k=%d", v.queries[0], v.ks[0])
		}
	})

	t.Run("below threshold declines", func(t *testing.T) {
		v := &fakeVectors{matches: []Match{goodMatch("x", 1.0, "a")}}
		s := Reduce(State{}, (&Retriever{Searcher: v, Threshold: 0.65}).Run(ctx, State{Query: "q"}).Delta)

		if !s.ShouldDecline || s.Answer != DeclineMessage {
			t.Fatalf("expected decline, got %+v", s)
		}
		want := "Confidence score (50.00%) is below threshold (65.00%). The knowledge base doesn't contain " +
			"sufficiently relevant information to answer this query safely."
		if s.DeclineReason != want {
			t.Errorf("DeclineReason = %q", s.DeclineReason)
		}
		if len(s.Evidence) != 1 {
			t.Errorf("evidence not kept on decline: %d", len(s.Evidence))
		}
	})

	t.Run("no matches declines", func(t *testing.T) {
		s := Reduce(State{}, (&Retriever{Searcher: &fakeVectors{}, Threshold: 0.65}).Run(ctx, State{Query: "q"}).Delta)
		if !s.ShouldDecline || s.Confidence != 0 || len(s.Evidence) != 0 {
			t.Errorf("unexpected state: %+v", s)
		}
	})

	t.Run("failure declines", func(t *testing.T) {
		v := &fakeVectors{err: errors.New("index unreachable")}
		prev := State{Evidence: []Passage{{Text: "stale"}}, Confidence: 0.8}
		res := (&Retriever{Searcher: v, Threshold: 0.65}).Run(ctx, prev)
		if res.Err != nil {
			t.Fatalf("Err = %v", res.Err)
		}
		s := Reduce(prev, res.Delta)
		if len(s.Evidence) != 0 || s.Confidence != 0 || !s.ShouldDecline || s.Answer != DeclineMessage {
			t.Errorf("unexpected state: %+v", s)
		}
		if s.DeclineReason != "Error during retrieval: index unreachable" {
			t.Errorf("DeclineReason = %q", s.DeclineReason)
		}
		if s.Error != "Retrieval failed: index unreachable" {
			t.Errorf("Error = %q", s.Error)
		}
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		distance, want float64
	}{
		{0, 1},
		{0.5, 0.75},
		{1, 0.5},
		{2, 0},
		{2.5, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		if got := (Match{Distance: tt.distance}).Similarity(); got != tt.want {
			t.Errorf("Similarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestGraphEnricher(t *testing.T) {
	ctx := context.Background()
	base := State{Query: "transformer attention", Evidence: []Passage{{Text: "vec", Score: score(0.9), Origin: OriginVector}}}

	t.Run("found prepends passage", func(t *testing.T) {
		g := &fakeGraph{result: GraphResult{Availability: GraphFound, Entities: []Entity{
			{Name: "Transformer", Type: "Model",
				Relationships: []Relationship{{Relation: "USES", Target: "Attention"}, {Relation: "CITED_BY", Target: ""}},
				Sources:       []string{"paper.pdf"}},
			{Name: "Attention", Type: "Concept"},
		}}}
		s := Reduce(base, (&GraphEnricher{Graph: g}).Run(ctx, base).Delta)

		if len(s.Evidence) != 2 {
			t.Fatalf("Evidence = %+v", s.Evidence)
		}
		want := "[Graph Knowledge]\nEntity: Transformer (Model)\n  Relationships: USES -> Attention\n  Found in: paper.pdf\n\nEntity: Attention (Concept)"
		if s.Evidence[0].Text != want {
			t.Errorf("graph passage = %q\nwant %q", s.Evidence[0].Text, want)
		}
		if s.Evidence[0].Score != nil || s.Evidence[0].Origin != OriginGraph {
			t.Errorf("graph passage = %+v", s.Evidence[0])
		}
		if s.Evidence[1].Text != "vec" {
			t.Errorf("vector passage moved: %+v", s.Evidence[1])
		}
		if len(s.GraphEntities) != 2 {
			t.Errorf("GraphEntities = %+v", s.GraphEntities)
		}
		if len(s.Reasoning) != 1 || s.Reasoning[0] != "[Graph] Found 2 related entities in knowledge graph." {
			t.Errorf("Reasoning = %q", s.Reasoning)
		}
		if g.query != "transformer attention" {
			t.Errorf("graph queried with %q", g.query)
		}
	})

	noops := map[string]GraphQuerier{
		"nil graph":         nil,
		"unavailable":       &fakeGraph{result: GraphResult{Availability: GraphUnavailable, Err: errors.New("dial tcp: refused")}},
		"empty":             &fakeGraph{result: GraphResult{Availability: GraphEmpty}},
		"found but unnamed": &fakeGraph{result: GraphResult{Availability: GraphFound, Entities: []Entity{{Type: "X"}}}},
	}
	for name, g := range noops {
		t.Run(name, func(t *testing.T) {
			res := (&GraphEnricher{Graph: g}).Run(ctx, base)
			if res.Err != nil {
				t.Fatalf("Err = %v", res.Err)
			}
			s := Reduce(base, res.Delta)
			if len(s.Evidence) != 1 || len(s.GraphEntities) != 0 || len(s.Reasoning) != 0 {
				t.Errorf("state changed: %+v", s)
			}
		})
	}
}

func TestDescribeEntities_Limits(t *testing.T) {
	var entities []Entity
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		entities = append(entities, Entity{
			Name: name,
			Type: "T",
			Relationships: []Relationship{
				{"R", "1"}, {"R", "2"}, {"R", "3"}, {"R", "4"}, {"R", "5"}, {"R", "6"},
			},
			Sources: []string{"s1", "s2", "s3", "s4"},
		})
	}
	got := DescribeEntities(entities)

	if n := strings.Count(got, "Entity: "); n != 5 {
		t.Errorf("described %d entities, want 5", n)
	}
	if strings.Contains(got, "Entity: f") {
		t.Error("sixth entity described")
	}
	if strings.Contains(got, "R -> 6") {
		t.Error("sixth relationship described")
	}
	if strings.Contains(got, "s4") {
		t.Error("fourth source described")
	}
}

func TestGrader(t *testing.T) {
	ctx := context.Background()
	scored := []Passage{
		{Text: "[Graph Knowledge]\nEntity: X (Y)", Origin: OriginGraph},
		{Text: "p1", Score: score(0.9)},
		{Text: "p2", Score: score(0.7)},
		{Text: "p3", Score: score(0.8)},
		{Text: "p4", Score: score(0.8)},
	}

	t.Run("empty evidence", func(t *testing.T) {
		c := &scriptedCompleter{replies: []string{"relevant"}}
		s := Reduce(State{}, (&Grader{Completer: c, Threshold: 0.65}).Run(ctx, State{Query: "q"}).Delta)
		if s.Grade != GradeNotRelevant || !s.ShouldRewrite {
			t.Errorf("Grade = %q, ShouldRewrite = %v", s.Grade, s.ShouldRewrite)
		}
		if s.GradeReasoning != "No documents were retrieved from the knowledge base." {
			t.Errorf("GradeReasoning = %q", s.GradeReasoning)
		}
		if c.calls != 0 {
			t.Errorf("grader called %d times", c.calls)
		}
	})

	t.Run("fast path ignores unavailable collaborator", func(t *testing.T) {
		c := &scriptedCompleter{err: errors.New("unreachable")}
		evidence := []Passage{{Text: "a", Score: score(0.5)}, {Text: "b", Score: score(0.6)}, {Text: "web", Origin: OriginWeb}}
		s := Reduce(State{}, (&Grader{Completer: c, Threshold: 0.65}).Run(ctx, State{Evidence: evidence}).Delta)
		if s.Grade != GradeNotRelevant || !s.ShouldRewrite {
			t.Errorf("Grade = %q", s.Grade)
		}
		if s.GradeReasoning != "Retrieved documents have low similarity scores (avg: 0.550). Query may need rewriting." {
			t.Errorf("GradeReasoning = %q", s.GradeReasoning)
		}
		if c.calls != 0 {
			t.Errorf("grader called %d times", c.calls)
		}
	})

	t.Run("unscored evidence averages to zero", func(t *testing.T) {
		c := &scriptedCompleter{replies: []string{"relevant"}}
		evidence := []Passage{{Text: "web", Origin: OriginWeb}}
		s := Reduce(State{}, (&Grader{Completer: c, Threshold: 0.65}).Run(ctx, State{Evidence: evidence}).Delta)
		if s.Grade != GradeNotRelevant || c.calls != 0 {
			t.Errorf("Grade = %q, calls = %d", s.Grade, c.calls)
		}
	})

	verdicts := []struct {
		reply string
		want  Grade
	}{
		{"relevant", GradeRelevant},
		{"  Relevant.\n", GradeRelevant},
		{"not_relevant", GradeNotRelevant},
		{"NOT_RELEVANT", GradeNotRelevant},
		{"no idea", GradeNotRelevant},
	}
	for _, tt := range verdicts {
		t.Run("verdict "+tt.reply, func(t *testing.T) {
			c := &scriptedCompleter{replies: []string{tt.reply}}
			s := Reduce(State{}, (&Grader{Completer: c, Threshold: 0.65}).Run(ctx, State{Query: "q", Evidence: scored}).Delta)
			if s.Grade != tt.want {
				t.Errorf("Grade = %q, want %q", s.Grade, tt.want)
			}
			if s.ShouldRewrite != (tt.want == GradeNotRelevant) {
				t.Errorf("ShouldRewrite = %v", s.ShouldRewrite)
			}
			if c.calls != 1 {
				t.Fatalf("grader called %d times", c.calls)
			}
			prompt := c.prompts[0].User
			if !strings.Contains(prompt, "p2") || strings.Contains(prompt, "p3") {
				t.Errorf("prompt should carry the top 3 passages only: %q", prompt)
			}
		})
	}

	t.Run("failure is fail-open", func(t *testing.T) {
		c := &scriptedCompleter{err: errors.New("timeout")}
		res := (&Grader{Completer: c, Threshold: 0.65}).Run(ctx, State{Query: "q", Evidence: scored})
		if res.Err != nil {
			t.Fatalf("Err = %v", res.Err)
		}
		s := Reduce(State{}, res.Delta)
		if s.Grade != GradeRelevant || s.ShouldRewrite {
			t.Errorf("Grade = %q, ShouldRewrite = %v", s.Grade, s.ShouldRewrite)
		}
		if s.GradeReasoning != "Grading error (defaulting to relevant): timeout" {
			t.Errorf("GradeReasoning = %q", s.GradeReasoning)
		}
	})
}

func TestRewriter(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		c := &scriptedCompleter{replies: []string{"  refund policy return window days \n"}}
		prev := State{Query: "refunds?", Iteration: 1}
		s := Reduce(prev, (&Rewriter{Completer: c}).Run(ctx, prev).Delta)
		if s.RewrittenQuery != "refund policy return window days" {
			t.Errorf("RewrittenQuery = %q", s.RewrittenQuery)
		}
		if s.Iteration != 2 {
			t.Errorf("Iteration = %d, want 2", s.Iteration)
		}
		if len(s.Reasoning) != 1 || s.Reasoning[0] != "[Rewriter] Query transformed for better retrieval." {
			t.Errorf("Reasoning = %q", s.Reasoning)
		}
	})

	t.Run("rewrites the previous rewrite", func(t *testing.T) {
		c := &scriptedCompleter{replies: []string{"third"}}
		(&Rewriter{Completer: c}).Run(ctx, State{Query: "first", RewrittenQuery: "second"})
		if !strings.Contains(c.prompts[0].User, "Original Query: second") {
			t.Errorf("prompt = %q", c.prompts[0].User)
		}
	})

	failures := map[string]*scriptedCompleter{
		"error": {err: errors.New("rate limit")},
		"empty": {replies: []string{"   "}},
	}
	for name, c := range failures {
		t.Run(name+" still increments", func(t *testing.T) {
			prev := State{Query: "q", RewrittenQuery: "prior", Iteration: 2}
			res := (&Rewriter{Completer: c}).Run(ctx, prev)
			if res.Err != nil {
				t.Fatalf("Err = %v", res.Err)
			}
			s := Reduce(prev, res.Delta)
			if s.Iteration != 3 {
				t.Errorf("Iteration = %d, want 3", s.Iteration)
			}
			if s.RewrittenQuery != "prior" {
				t.Errorf("RewrittenQuery = %q, want prior", s.RewrittenQuery)
			}
			if !strings.HasPrefix(s.Error, "Query rewrite failed: ") {
				t.Errorf("Error = %q", s.Error)
			}
		})
	}
}

func TestWebSearchFallback(t *testing.T) {
	ctx := context.Background()
	base := State{Query: "q", RewrittenQuery: "better q", Evidence: []Passage{{Text: "vec", Score: score(0.9)}}}
	hits := []WebResult{
		{Title: " Go ", Snippet: "The Go language", URL: "https://go.dev"},
		{},
		{Title: "2", URL: "u2"}, {Title: "3", URL: "u3"}, {Title: "4", URL: "u4"},
		{Title: "5", URL: "u5"}, {Title: "6", URL: "u6"},
	}

	t.Run("preferred provider", func(t *testing.T) {
		preferred := &fakeWeb{name: "tavily", results: hits}
		fallback := &fakeWeb{name: "duckduckgo"}
		s := Reduce(base, (&WebSearchFallback{Preferred: preferred, Fallback: fallback}).Run(ctx, base).Delta)

		if preferred.queries[0] != "better q" {
			t.Errorf("searched %q", preferred.queries[0])
		}
		if fallback.calls != 0 {
			t.Errorf("fallback called %d times", fallback.calls)
		}
		if !s.WebResultsUsed || len(s.WebResults) != MaxWebResults {
			t.Fatalf("WebResults = %+v", s.WebResults)
		}
		if len(s.Evidence) != 1+MaxWebResults || s.Evidence[0].Text != "vec" {
			t.Fatalf("Evidence = %+v", s.Evidence)
		}
		web := s.Evidence[1]
		if web.Text != "[Web Source: Go]\nThe Go language\nURL: https://go.dev" {
			t.Errorf("web passage = %q", web.Text)
		}
		if web.Origin != OriginWeb || web.Score != nil || web.Metadata["title"] != "Go" {
			t.Errorf("web passage = %+v", web)
		}
		if s.Reasoning[0] != "[Web Search] Found 5 web results to supplement knowledge base." {
			t.Errorf("Reasoning = %q", s.Reasoning)
		}
	})

	t.Run("falls back on error", func(t *testing.T) {
		preferred := &fakeWeb{name: "tavily", err: errors.New("401")}
		fallback := &fakeWeb{name: "duckduckgo", results: hits[:1]}
		s := Reduce(base, (&WebSearchFallback{Preferred: preferred, Fallback: fallback}).Run(ctx, base).Delta)
		if fallback.calls != 1 || len(s.WebResults) != 1 {
			t.Errorf("fallback calls = %d, results = %d", fallback.calls, len(s.WebResults))
		}
	})

	t.Run("falls back on empty", func(t *testing.T) {
		preferred := &fakeWeb{name: "tavily"}
		fallback := &fakeWeb{name: "duckduckgo", results: hits[:1]}
		(&WebSearchFallback{Preferred: preferred, Fallback: fallback}).Run(ctx, base)
		if fallback.calls != 1 {
			t.Errorf("fallback calls = %d", fallback.calls)
		}
	})

	t.Run("nothing found still sets flag", func(t *testing.T) {
		fallback := &fakeWeb{name: "duckduckgo", err: errors.New("blocked")}
		res := (&WebSearchFallback{Fallback: fallback}).Run(ctx, base)
		if res.Err != nil {
			t.Fatalf("Err = %v", res.Err)
		}
		s := Reduce(base, res.Delta)
		if !s.WebResultsUsed || len(s.WebResults) != 0 || len(s.Evidence) != 1 {
			t.Errorf("unexpected state: %+v", s)
		}
		if s.Reasoning[0] != "[Web Search] Found 0 web results to supplement knowledge base." {
			t.Errorf("Reasoning = %q", s.Reasoning)
		}
	})

	t.Run("no providers", func(t *testing.T) {
		s := Reduce(base, (&WebSearchFallback{}).Run(ctx, base).Delta)
		if !s.WebResultsUsed {
			t.Error("WebResultsUsed not set")
		}
	})
}

func TestSynthesizer(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("ü", 200)
	evidence := []Passage{
		{Text: "[Graph Knowledge]\nEntity: A (B)", Origin: OriginGraph},
		{Text: long, Score: score(0.91), Metadata: map[string]string{"source": "policy.pdf", "chunk_id": "c-7"}, Origin: OriginVector},
		{Text: "short", Score: score(0.8), Origin: OriginVector},
		{Text: "fourth", Score: score(0.7), Origin: OriginVector},
	}

	t.Run("decline wins", func(t *testing.T) {
		g := &scriptedCompleter{replies: []string{"should not be used"}}
		s := State{Intent: IntentKnowledgeSearch, Evidence: evidence, ShouldDecline: true, Answer: DeclineMessage, Grade: GradeRelevant}
		res := (&Synthesizer{Generator: g}).Run(ctx, s)
		out := Reduce(s, res.Delta)
		if out.Answer != DeclineMessage || len(out.Citations) != 0 {
			t.Errorf("Answer = %q, citations = %d", out.Answer, len(out.Citations))
		}
		if g.calls != 0 {
			t.Errorf("generator called %d times", g.calls)
		}
		if !res.Route.Terminal {
			t.Error("synthesis must be terminal")
		}
	})

	t.Run("grounded answer", func(t *testing.T) {
		g := &scriptedCompleter{replies: []string{"Refunds take 30 days [Source 2]."}}
		s := State{Query: "refunds?", Intent: IntentKnowledgeSearch, Evidence: evidence}
		res := (&Synthesizer{Generator: g}).Run(ctx, s)
		out := Reduce(s, res.Delta)

		if out.Answer != "Refunds take 30 days [Source 2]." {
			t.Errorf("Answer = %q", out.Answer)
		}
		system := g.prompts[0].System
		if !strings.Contains(system, "[Source 1]\n[Graph Knowledge]") || !strings.Contains(system, "\n\n---\n\n[Source 3]\nshort") {
			t.Errorf("system prompt missing sources:\n%s", system)
		}
		if strings.Contains(system, "fourth") {
			t.Error("prompt carries more than 3 passages")
		}
		if g.prompts[0].User != "refunds?" {
			t.Errorf("user prompt = %q", g.prompts[0].User)
		}

		if len(out.Citations) != 3 {
			t.Fatalf("Citations = %+v", out.Citations)
		}
		want := []Citation{
			{Source: "Knowledge Graph", ContentPreview: "[Graph Knowledge]\nEntity: A (B)", SimilarityScore: 0, ChunkID: "0"},
			{Source: "policy.pdf", ContentPreview: strings.Repeat("ü", 150) + "...", SimilarityScore: 0.91, ChunkID: "c-7"},
			{Source: "Document 3", ContentPreview: "short", SimilarityScore: 0.8, ChunkID: "2"},
		}
		for i := range want {
			if out.Citations[i] != want[i] {
				t.Errorf("citation %d = %+v, want %+v", i, out.Citations[i], want[i])
			}
		}
	})

	t.Run("web citations use title", func(t *testing.T) {
		got := BuildCitations([]Passage{{Text: "t", Metadata: map[string]string{"title": "Go"}, Origin: OriginWeb}})
		if got[0].Source != "Go" {
			t.Errorf("Source = %q", got[0].Source)
		}
	})

	t.Run("generation failure", func(t *testing.T) {
		g := &scriptedCompleter{err: errors.New("context deadline exceeded")}
		s := State{Intent: IntentKnowledgeSearch, Evidence: evidence}
		res := (&Synthesizer{Generator: g}).Run(ctx, s)
		if res.Err != nil {
			t.Fatalf("Err = %v", res.Err)
		}
		out := Reduce(s, res.Delta)
		if out.Answer != GenerationFailedMessage || len(out.Citations) != 0 {
			t.Errorf("Answer = %q", out.Answer)
		}
		if out.Error != "Synthesis failed: context deadline exceeded" {
			t.Errorf("Error = %q", out.Error)
		}
	})

	static := []struct {
		name  string
		state State
		want  string
	}{
		{"calculation", State{Intent: IntentCalculation, Calculation: &Calculation{Result: "1175", Steps: []string{"25 * 47", "= 1175"}}},
			"The result is: 1175\n\nCalculation steps:\n25 * 47\n= 1175"},
		{"calculation without steps", State{Intent: IntentCalculation, Calculation: &Calculation{Result: "4"}}, "The result is: 4"},
		{"calculation without result", State{Intent: IntentCalculation}, CannotHelpMessage},
		{"greeting", State{Intent: IntentGreeting}, GreetingMessage},
		{"error", State{Intent: IntentUnknown, Error: "Router classification failed: boom"},
			"I encountered an error: Router classification failed: boom. Please try again."},
		{"knowledge search without evidence", State{Intent: IntentKnowledgeSearch}, CannotHelpMessage},
		{"api lookup", State{Intent: IntentAPILookup}, CannotHelpMessage},
	}
	for _, tt := range static {
		t.Run(tt.name, func(t *testing.T) {
			g := &scriptedCompleter{replies: []string{"unused"}}
			out := Reduce(tt.state, (&Synthesizer{Generator: g}).Run(ctx, tt.state).Delta)
			if out.Answer != tt.want {
				t.Errorf("Answer = %q, want %q", out.Answer, tt.want)
			}
			if len(out.Citations) != 0 || g.calls != 0 {
				t.Errorf("citations = %d, generator calls = %d", len(out.Citations), g.calls)
			}
		})
	}
}
