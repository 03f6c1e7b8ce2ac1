package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/extracta/internal/services/extraction"
)

// Markdown renders a results view as a markdown report. order lists field ids in
// the sequence they were requested; fields outside it follow by id.
func Markdown(view *extraction.ResultsView, order []string) string {
	var b strings.Builder

	title := view.WorkflowName
	if title == "" {
		title = view.WorkflowID
	}
	fmt.Fprintf(&b, "# %s\n\n", escape(title))

	fmt.Fprintf(&b, "- **Document:** %s\n", escape(view.DocumentID))
	fmt.Fprintf(&b, "- **Workflow:** %s\n", escape(view.WorkflowID))
	fmt.Fprintf(&b, "- **Status:** %s\n", view.Status)
	if view.ExtractedAt != nil {
		fmt.Fprintf(&b, "- **Extracted:** %s\n", view.ExtractedAt.UTC().Format(time.RFC1123))
	}
	if view.ErrorMessage != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", escape(view.ErrorMessage))
	}
	b.WriteString("\n")

	if len(view.Fields) == 0 {
		b.WriteString("No extracted fields.\n")
		return b.String()
	}

	ids := view.FieldIDs(order)

	var text, answers []string
	for _, id := range ids {
		if view.Fields[id].HasAnswers {
			answers = append(answers, id)
		} else {
			text = append(text, id)
		}
	}

	if len(text) > 0 {
		b.WriteString("## Extracted Text\n\n")
		b.WriteString("| Field | Page | Confidence | Text |\n")
		b.WriteString("|-------|------|------------|------|\n")
		for _, id := range text {
			field := view.Fields[id]
			if len(field.Extractions) == 0 {
				fmt.Fprintf(&b, "| %s | - | - | Not found |\n", cell(field.Metadata.Name))
				continue
			}
			for _, e := range field.Extractions {
				page := "-"
				if e.Page != nil {
					page = fmt.Sprintf("%d", *e.Page)
				}
				confidence := "-"
				if e.Confidence != nil {
					confidence = fmt.Sprintf("%.0f%%", *e.Confidence*100)
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(field.Metadata.Name), page, confidence, cell(e.Text))
			}
		}
		b.WriteString("\n")
	}

	if len(answers) > 0 {
		b.WriteString("## Answers\n\n")
		for _, id := range answers {
			field := view.Fields[id]
			name := field.FieldName
			if name == "" {
				name = field.Metadata.Name
			}
			fmt.Fprintf(&b, "### %s\n\n", escape(name))
			if len(field.Answers) == 0 {
				b.WriteString("No answer selected.\n\n")
				continue
			}
			for _, answer := range field.Answers {
				label := answer.Value
				if option, ok := field.AnswerOptions[answer.Option]; ok && option != "" {
					label = option
				}
				fmt.Fprintf(&b, "- **%s** %s\n", escape(answer.Option), escape(label))
			}
			if len(field.AnswerOptions) > 0 {
				keys := make([]string, 0, len(field.AnswerOptions))
				for k := range field.AnswerOptions {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				options := make([]string, len(keys))
				for i, k := range keys {
					options[i] = fmt.Sprintf("%s: %s", k, field.AnswerOptions[k])
				}
				fmt.Fprintf(&b, "\n*Options: %s*\n", escape(strings.Join(options, "; ")))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

var escaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`)

func escape(s string) string {
	return escaper.Replace(s)
}

func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return escape(strings.ReplaceAll(s, "|", `\|`))
}
