package formatter

import "text/template"

var tooComplexTemplate = template.Must(template.New("too-complex").Parse(`{{.Header -}}
{{.Snippet -}}
{{.Underline -}}
{{.Help "raise analysis.max_steps or analysis.max_states in the configuration file" -}}
{{.Note}}
`))

// TooComplexFormatter points at the function that exhausted the analysis
// limits and at the settings that raise them.
type TooComplexFormatter struct{}

func (f *TooComplexFormatter) Template() *template.Template { return tooComplexTemplate }
