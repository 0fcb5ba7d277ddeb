package extract

import (
	"fmt"
	"strings"

	"github.com/cellarworks/enrich-cli/internal/model"
)

// systemPrompt is the shared instruction for all extraction calls.
const systemPrompt = `You are a meticulous data-extraction assistant for a beverage catalog. You read product pages and extract structured attributes for bottles of spirits and fortified wine.

Rules:
- Answer ONLY based on information present in the provided page content
- Return valid JSON for every response
- Omit a field entirely if the page does not state it; never guess
- Confidence is 0.0-1.0 based on how directly the page states the value
- For numerical values, use raw numbers without units (e.g., 43 not "43% ABV")
- For lists, return JSON arrays of strings
- If the page describes several distinct products, return one entry per product`

// BuildSystem composes the system prompt with the product-type hint.
// The hint and descriptors come from configuration; nothing here names
// a specific category.
func BuildSystem(category model.Category) string {
	return fmt.Sprintf("%s\n\nProduct type: %s", systemPrompt, category)
}

// BuildUserMessage lays out the field descriptors verbatim, then the
// page content, then the response contract.
func BuildUserMessage(content string, descriptors []model.FieldDescriptor) string {
	var sb strings.Builder
	sb.WriteString("Extract the following fields:\n\n")
	for _, d := range descriptors {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s", d.Name, d.Type, d.Description))
		if len(d.Enum) > 0 {
			sb.WriteString(fmt.Sprintf(" One of: %s.", strings.Join(d.Enum, ", ")))
		}
		if len(d.Examples) > 0 {
			sb.WriteString(fmt.Sprintf(" Examples: %s.", strings.Join(d.Examples, "; ")))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nPage content:\n")
	sb.WriteString(content)
	sb.WriteString(`

Respond with ONLY valid JSON in this format:
{
  "entries": [
    {
      "fields": {"<field name>": <value>},
      "confidence": {"<field name>": <0.0 to 1.0>}
    }
  ]
}

Return one entry per distinct product on the page.`)
	return sb.String()
}

// cleanJSON strips markdown fences and trims to the outermost JSON
// object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	if start := strings.Index(text, "{"); start > 0 {
		text = text[start:]
	}
	if end := strings.LastIndex(text, "}"); end >= 0 && end < len(text)-1 {
		text = text[:end+1]
	}
	return strings.TrimSpace(text)
}
