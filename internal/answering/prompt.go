package answering

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/models"
)

const systemPrompt = `You are a helpful assistant that answers questions about the user's uploaded documents.
Answer using only the provided context. If the context does not contain the answer, say that you could not find it in the documents.
Keep answers concise and answer in the language of the question.`

// buildMessages replays earlier turns of the conversation, then lays out the
// retrieved chunks, labelled by source and position, followed by the question.
func buildMessages(question string, candidates []document.Candidate, history []models.Record) []models.Message {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, c := range candidates {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Source: %s #%d]\n%s", c.SourceID, c.Position, c.Text)
	}
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	msgs := make([]models.Message, 0, 2+2*len(history))
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	for _, turn := range history {
		msgs = append(msgs,
			models.Message{Role: models.RoleUser, Content: turn.Question},
			models.Message{Role: models.RoleAssistant, Content: turn.Answer},
		)
	}
	return append(msgs, models.Message{Role: models.RoleUser, Content: sb.String()})
}

const snippetRunes = 300

func citations(candidates []document.Candidate) []models.Citation {
	out := make([]models.Citation, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, models.Citation{
			SourceID: c.SourceID,
			Position: c.Position,
			Snippet:  snippet(c.Text),
			Score:    c.Score,
		})
	}
	return out
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "…"
}
