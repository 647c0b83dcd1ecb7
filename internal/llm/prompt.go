package llm

import "strings"

// Passage is a quoted piece of guidance offered to the model.
type Passage struct {
	Title string
	Text  string
}

// Input is everything the post-processor may show the model.
type Input struct {
	Question string
	Summary  string
	Passages []Passage
}

const instruction = `You are a cautious summariser of UK data protection guidance published by the ICO.
Rewrite the extractive summary below as a short plain-English paraphrase of at most three sentences.
Use only information found in the passages. Do not give legal advice, do not say whether anything is lawful or compliant, and do not recommend actions.
If the passages do not address the question, repeat the most relevant passage sentence instead of refusing.`

// buildPrompt renders the instruction, the question, the deterministic
// summary and at most maxPassages passages as Title/Paragraph blocks.
func buildPrompt(in Input, maxPassages int) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(in.Question))
	b.WriteString("\n\nExtractive summary:\n")
	b.WriteString(in.Summary)
	b.WriteString("\n\nPassages:")
	for i, p := range in.Passages {
		if maxPassages > 0 && i >= maxPassages {
			break
		}
		b.WriteString("\n\nTitle: ")
		b.WriteString(p.Title)
		b.WriteString("\nParagraph: ")
		b.WriteString(p.Text)
	}
	return b.String()
}
