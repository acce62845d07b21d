package formatter

import "text/template"

var generalTemplate = template.Must(template.New("general").Parse(`{{.Header -}}
{{.Snippet -}}
{{.Underline -}}
{{.Suggestion -}}
{{.Note}}
`))

// GeneralIssueFormatter renders the snippet, the underline and any
// suggestion of an issue.
type GeneralIssueFormatter struct{}

func (f *GeneralIssueFormatter) Template() *template.Template { return generalTemplate }
