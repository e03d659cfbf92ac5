package gemini

import (
	"strings"

	"github.com/kalambet/stylelens/internal/look"
)

// outcome is the decoded meaning of a 200 response: either success or failure.
type outcome interface {
	isOutcome()
}

type success struct {
	result look.AnalysisResult
}

type failure struct {
	message string
}

func (success) isOutcome() {}
func (failure) isOutcome() {}

// interpret folds a raw response into an outcome. Only the first candidate
// is considered.
func interpret(resp *generateResponse) outcome {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return failure{message: "The image was blocked by the analysis service (" + resp.PromptFeedback.BlockReason + ")."}
		}
		return failure{message: GenericFailure}
	}

	c := resp.Candidates[0]
	text := candidateText(c)
	if text == "" {
		text = NoAnalysis
	}

	return success{result: look.AnalysisResult{
		Text:    text,
		Sources: groundingSources(c.GroundingMetadata),
	}}
}

func candidateText(c candidate) string {
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func groundingSources(md *groundingMetadata) []look.Source {
	sources := []look.Source{}
	if md == nil {
		return sources
	}
	for _, ch := range md.GroundingChunks {
		if ch.Web == nil {
			continue
		}
		sources = append(sources, look.Source{URI: ch.Web.URI, Title: ch.Web.Title})
	}
	return sources
}
