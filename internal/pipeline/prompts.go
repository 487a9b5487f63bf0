package pipeline

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/distill/internal/llm"
	"github.com/jackzampolin/distill/internal/store"
)

// Reply shapes for the structured stages.

type claimItem struct {
	Claim string `json:"claim"`
	Type  string `json:"type"`
}

type claimExtraction struct {
	Claims []claimItem `json:"claims"`
}

type evaluation struct {
	Claim  string  `json:"claim"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

type filterVerdicts struct {
	Evaluations []evaluation `json:"evaluations"`
}

type ideaCluster struct {
	IdeaTitle    string   `json:"idea_title"`
	MergedClaims []string `json:"merged_claims"`
	Summary      string   `json:"summary"`
}

type clusterResult struct {
	Ideas []ideaCluster `json:"ideas"`
}

type expansion struct {
	Principle     string `json:"principle"`
	BehaviorDelta string `json:"behavior_delta"`
}

type compression struct {
	CompressedContent string   `json:"compressed_content"`
	KeyInsights       []string `json:"key_insights"`
	CompressionNotes  string   `json:"compression_notes,omitempty"`
}

var extractSchema = llm.MustSchema("claim_extraction", `{
  "type": "object",
  "required": ["claims"],
  "properties": {
    "claims": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["claim", "type"],
        "properties": {
          "claim": {"type": "string"},
          "type": {"type": "string", "enum": ["principle", "rule", "recommendation", "constraint", "causal"]}
        }
      }
    }
  }
}`)

var filterSchema = llm.MustSchema("claim_filter", `{
  "type": "object",
  "required": ["evaluations"],
  "properties": {
    "evaluations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["claim", "label", "score", "reason"],
        "properties": {
          "claim": {"type": "string"},
          "label": {"type": "string", "enum": ["core_insight", "supporting_insight", "redundant", "filler"]},
          "score": {"type": "number"},
          "reason": {"type": "string"}
        }
      }
    }
  }
}`)

var clusterSchema = llm.MustSchema("idea_clusters", `{
  "type": "object",
  "required": ["ideas"],
  "properties": {
    "ideas": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["idea_title", "merged_claims"],
        "properties": {
          "idea_title": {"type": "string"},
          "merged_claims": {"type": "array", "items": {"type": "string"}},
          "summary": {"type": "string"}
        }
      }
    }
  }
}`)

var expandSchema = llm.MustSchema("idea_expansion", `{
  "type": "object",
  "required": ["principle", "behavior_delta"],
  "properties": {
    "principle": {"type": "string"},
    "behavior_delta": {"type": "string"}
  }
}`)

var compressSchema = llm.MustSchema("chapter_compression", `{
  "type": "object",
  "required": ["compressed_content"],
  "properties": {
    "compressed_content": {"type": "string"},
    "key_insights": {"type": "array", "items": {"type": "string"}},
    "compression_notes": {"type": "string"}
  }
}`)

func buildExtractPrompt(chunkText string) string {
	return fmt.Sprintf(`Extract every atomic claim from this book excerpt. A claim is a single assertion a reader could act on or reason from, stated in one sentence in your own words.

Type each claim:
- principle: a general truth about how something works
- rule: a directive the author states as always applying
- recommendation: a suggested course of action
- constraint: a limit or precondition
- causal: an X-leads-to-Y assertion

Skip anecdotes, transitions, and restatements. An excerpt with nothing actionable yields an empty list.

Excerpt:

%s`, chunkText)
}

func buildFilterPrompt(claims []store.Claim) string {
	var b strings.Builder
	b.WriteString(`Judge each claim below for whether it would change how a thoughtful reader decides or acts.

Labels:
- core_insight: changes decisions; the book's reason for existing
- supporting_insight: sharpens or operationalizes a core insight
- redundant: restates another claim in this list
- filler: true but changes nothing

Give each claim a score from 0 to 1 for decision impact and a one-line reason. Echo each claim text exactly as given.

Claims:
`)
	for i, c := range claims {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Text)
	}
	return b.String()
}

func buildClusterPrompt(claims []store.Claim) string {
	var b strings.Builder
	b.WriteString(`Cluster these claims into the smallest set of distinct ideas, where one idea is one decision-changing insight. Aim for 7 to 12 ideas at most; a book with little signal should collapse to fewer. Every idea lists the exact claim texts it merges. Do not invent claims.
`)
	b.WriteString("\nClaims (strongest first):\n")
	for i, c := range claims {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, c.Label, c.Text)
	}
	return b.String()
}

func buildExpandPrompt(idea store.Idea, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Idea: %s\n", idea.Title)
	if summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", summary)
	}
	b.WriteString("Merged claims:\n")
	for _, c := range idea.MergedClaims {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString(`
Write two things for this idea:
- principle: the underlying truth, stated in two or three plain sentences
- behavior_delta: what a reader does differently starting tomorrow, concrete enough to observe

No throat-clearing. No restating the claims.`)
	return b.String()
}

func buildReconstructPrompt(bookTitle string, ideas []store.Idea) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Reconstruct the distilled core of "%s" as a markdown document.

Structure, exactly:
- A 2-3 sentence introduction. No heading.
- For each idea, in order: "## Idea N: <Title>", then "### Core Principle", then "### What This Changes", and optionally "### Best Example" when one of the merged claims contains a concrete example worth keeping.
- A horizontal rule (---) between ideas.

Use the principle and behavior delta verbatim where they are strong; tighten them where they are not. Add nothing the ideas do not contain.

Ideas:

`, bookTitle)
	for i, idea := range ideas {
		fmt.Fprintf(&b, "Idea %d: %s\n", i+1, idea.Title)
		if idea.Principle != "" {
			fmt.Fprintf(&b, "Principle: %s\n", idea.Principle)
		}
		if idea.BehaviorDelta != "" {
			fmt.Fprintf(&b, "Behavior delta: %s\n", idea.BehaviorDelta)
		}
		for _, c := range idea.MergedClaims {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildCompressPrompt(bookTitle string, chapter store.Chapter, isFirst bool, targetRatio float64, contextWords int, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compress a chapter of \"%s\" while keeping every idea that changes what a reader would do.\n\n", bookTitle)
	fmt.Fprintf(&b, "Chapter: %s\n", chapter.Title)
	fmt.Fprintf(&b, "Keep roughly %.0f%% of the original words. Carry about %d words of framing context so the chapter stands alone.\n", targetRatio*100, contextWords)
	if isFirst {
		b.WriteString("This is the opening chapter: preserve its hook so the compressed book still pulls the reader in.\n")
	}
	b.WriteString(`
Rules:
- Keep the author's voice and key phrasings.
- Cut anecdotes that only illustrate what a kept sentence already states.
- key_insights: up to five one-line takeaways from this chapter.

Original content:

`)
	b.WriteString(content)
	return b.String()
}

func buildAssemblePrompt(bookTitle string, chapters []store.Chapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Assemble the compressed chapters of "%s" into one markdown document.

Emit, in order:
- "# %s"
- A short overview paragraph of the whole book.
- Each chapter under "## <Chapter Title>", body verbatim as provided. Do not rewrite chapter bodies.
- A final "## Key Takeaways" section merging the chapter insights, deduplicated.

Chapters:

`, bookTitle, bookTitle)
	for _, ch := range chapters {
		fmt.Fprintf(&b, "### %s\n%s\n", ch.Title, ch.CompressedContent)
		if len(ch.KeyInsights) > 0 {
			b.WriteString("Insights:\n")
			for _, ins := range ch.KeyInsights {
				fmt.Fprintf(&b, "- %s\n", ins)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
