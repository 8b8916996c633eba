package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders resolution emails from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"formatTime": formatTime,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, decision := range []string{"approved", "denied"} {
		name := "email_" + decision
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the email for a resolution payload. Returns subject
// and body.
func (r *Renderer) Render(payload ResolutionPayload) (subject, body string, err error) {
	templateName := "email_" + payload.Decision
	tmpl, ok := r.templates[templateName]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", templateName, err)
	}

	subject = fmt.Sprintf("[%s] Reimbursement #%d", titleCase(payload.Decision), payload.ReimbursementID)
	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}
