package planner

import (
	"fmt"
	"strings"
	"text/template"
)

const defaultSystemTemplate = `You are a travel planner. Plan trips that fit the traveller's dates, budget and preferences.
Reply only with JSON matching the response schema. The itinerary field is Markdown with one "## Day N" heading per day.`

const defaultPromptTemplate = `Plan a trip to {{.Trip.Destination}} from {{.Trip.StartDate}} to {{.Trip.EndDate}} ({{.Nights}} nights) for {{.Trip.Travelers}} {{if eq .Trip.Travelers 1}}traveller{{else}}travellers{{end}}.
{{- with .Trip.Budget}}
Budget: {{.}}.{{end}}
{{- with .Preferences.Pace}}
Preferred pace: {{.}}.{{end}}
{{- with .Preferences.Interests}}
Interests: {{join . ", "}}.{{end}}
{{- with .Preferences.Dietary}}
Dietary requirements: {{join . ", "}}.{{end}}
{{- with .Preferences.Accommodation}}
Accommodation: {{.}}.{{end}}
{{- with .Preferences.Avoid}}
Avoid: {{join . ", "}}.{{end}}
{{- with .Trip.Notes}}
Notes: {{.}}{{end}}
Suggest the trip length you would recommend for this destination in suggestedTripLength.`

var funcs = template.FuncMap{"join": strings.Join}

// Templates render the system and user prompts from a trip document.
type Templates struct {
	System *template.Template
	Prompt *template.Template
}

// ParseTemplates parses custom templates. Empty strings use the defaults.
func ParseTemplates(system, prompt string) (Templates, error) {
	if strings.TrimSpace(system) == "" {
		system = defaultSystemTemplate
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultPromptTemplate
	}
	systemTmpl, err := template.New("system").Funcs(funcs).Parse(system)
	if err != nil {
		return Templates{}, fmt.Errorf("parse system template: %w", err)
	}
	promptTmpl, err := template.New("prompt").Funcs(funcs).Parse(prompt)
	if err != nil {
		return Templates{}, fmt.Errorf("parse prompt template: %w", err)
	}
	return Templates{System: systemTmpl, Prompt: promptTmpl}, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
