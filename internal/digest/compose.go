package digest

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Digest is the rendered output for one group: a subject line plus HTML and
// plain-text bodies carrying the same information.
type Digest struct {
	Subject string
	HTML    string
	Text    string
}

// Composer renders summaries into deliverable digests.
type Composer struct {
	frontendURL string
}

func NewComposer(frontendURL string) *Composer {
	return &Composer{frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (c *Composer) BoardURL(boardID string) string {
	return c.frontendURL + "/boards/" + boardID
}

// Compose renders the digest for a summary. Missing display data degrades to
// defaults; it never fails.
func (c *Composer) Compose(s Summary, boardName, boardID string) Digest {
	boardURL := c.BoardURL(boardID)
	return Digest{
		Subject: fmt.Sprintf("Activity in %s", boardName),
		HTML:    c.composeHTML(s, boardName, boardURL),
		Text:    c.composeText(s, boardName, boardURL),
	}
}

// Preview is the short inbox preview line for a digest.
func Preview(s Summary) string {
	actor := s.ActorName
	if actor == "" {
		actor = "Someone"
	}
	return fmt.Sprintf("%s made %d changes", actor, s.TotalEvents)
}

func (c *Composer) composeHTML(s Summary, boardName, boardURL string) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Activity in ` + html.EscapeString(boardName) + `</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
.activity-item { background-color: #fff; border: 1px solid #dee2e6; border-radius: 6px; padding: 15px; margin-bottom: 10px; }
.changes { background-color: #f8f9fa; padding: 10px; border-radius: 4px; margin-top: 10px; }
.change-item { margin: 5px 0; font-size: 14px; }
.button { display: inline-block; background-color: #007bff; color: white !important; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 20px; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #dee2e6; font-size: 12px; color: #6c757d; }
</style>
</head>
<body>
<div class="container">
<div class="header">
<h2 style="margin: 0; color: #495057;">Activity in ` + html.EscapeString(boardName) + `</h2>
<p style="margin: 10px 0 0 0; color: #6c757d;">` + html.EscapeString(Preview(s)) + `</p>
</div>
`)

	for _, board := range s.Boards {
		for _, table := range board.Tables {
			tableName := table.Name
			if tableName == "" {
				tableName = "Untitled Table"
			}
			b.WriteString(`<div class="activity-item">
<h3 style="margin-top: 0; color: #495057;">` + html.EscapeString(tableName) + `</h3>
`)
			for _, row := range table.Rows {
				verb, icon := actionLine(row)
				b.WriteString(`<p><strong>` + icon + ` Task: ` + html.EscapeString(row.Name) + `</strong> - ` + html.EscapeString(verb) + `</p>
`)
				if len(row.Changes) > 0 {
					b.WriteString(`<div class="changes"><strong>Changes:</strong>`)
					for _, field := range row.Fields {
						change := row.Changes[field]
						b.WriteString(fmt.Sprintf(
							`<div class="change-item">&bull; %s: <span style="color: #dc3545;">%s</span> &rarr; <span style="color: #28a745;">%s</span></div>`,
							html.EscapeString(FriendlyFieldName(field)),
							html.EscapeString(FormatFieldValue(field, change.FromValue)),
							html.EscapeString(FormatFieldValue(field, change.ToValue)),
						))
					}
					b.WriteString(`</div>
`)
				}
			}
			b.WriteString(`</div>
`)
		}
	}

	b.WriteString(`<div style="text-align: center;">
<a href="` + boardURL + `" class="button">View Board</a>
</div>
<div class="footer">
<p>You received this email because you're a member of ` + html.EscapeString(boardName) + ` and haven't been active recently.</p>
<p>To stop receiving these notifications, update your notification preferences in your account settings.</p>
</div>
</div>
</body>
</html>
`)

	return b.String()
}

func (c *Composer) composeText(s Summary, boardName, boardURL string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Activity in %s\n\n%s:\n\n", boardName, Preview(s))

	for _, board := range s.Boards {
		for _, table := range board.Tables {
			tableName := table.Name
			if tableName == "" {
				tableName = "Untitled Table"
			}
			fmt.Fprintf(&b, "Table: %s\n%s\n", tableName, strings.Repeat("=", len(tableName)+7))
			for _, row := range table.Rows {
				verb, _ := actionLine(row)
				fmt.Fprintf(&b, "* %s - %s\n", row.Name, verb)
				for _, field := range row.Fields {
					change := row.Changes[field]
					fmt.Fprintf(&b, "  - %s: %s -> %s\n",
						FriendlyFieldName(field),
						FormatFieldValue(field, change.FromValue),
						FormatFieldValue(field, change.ToValue))
				}
				b.WriteString("\n")
			}
		}
	}

	fmt.Fprintf(&b, "View Board: %s\n\n---\n", boardURL)
	fmt.Fprintf(&b, "You received this email because you're a member of %s and haven't been active recently.\n", boardName)
	b.WriteString("To stop receiving these notifications, update your notification preferences in your account settings.\n")

	return b.String()
}

// actionLine picks the verb and icon for a row. Priority order: created
// beats deleted beats updated; anything else reads as a generic edit.
func actionLine(row *RowSummary) (string, string) {
	switch {
	case hasAction(row, ActionCreated):
		return "created a new row", "&#10024;"
	case hasAction(row, ActionDeleted):
		return "deleted the row", "&#128465;"
	case hasAction(row, ActionUpdated):
		if len(row.Fields) == 1 {
			return "updated " + strings.ToLower(FriendlyFieldName(row.Fields[0])), "&#9999;"
		}
		return "updated the row", "&#9999;"
	default:
		return "modified the row", "&#128221;"
	}
}

func hasAction(row *RowSummary, a Action) bool {
	for _, existing := range row.Actions {
		if existing == a {
			return true
		}
	}
	return false
}

var friendlyFieldNames = map[string]string{
	"name":        "Task Name",
	"status":      "Status",
	"priority":    "Priority",
	"due_date":    "Due Date",
	"owner_id":    "Owner",
	"description": "Description",
	"position":    "Position",
}

// FriendlyFieldName maps a field to its display name, falling back to
// title-cased, underscore-replaced text for unmapped fields.
func FriendlyFieldName(field string) string {
	if name, ok := friendlyFieldNames[field]; ok {
		return name
	}
	return titleCase(strings.ReplaceAll(field, "_", " "))
}

// FormatFieldValue renders a raw field value for display. Empty values read
// as "Not set", enum-ish fields are title-cased and due dates become long
// dates; everything else passes through verbatim.
func FormatFieldValue(field, value string) string {
	if value == "" || value == "empty" {
		return "Not set"
	}
	switch field {
	case "due_date":
		return formatDueDate(value)
	case "status", "priority":
		return titleCase(strings.ReplaceAll(value, "_", " "))
	}
	return value
}

func formatDueDate(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		if t, err = time.Parse("2006-01-02", value); err != nil {
			return value
		}
	}
	return t.Format("January 2, 2006 at 3:04 PM")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
