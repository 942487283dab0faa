// Package notify delivers customer notifications over SMTP or RabbitMQ.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[domain.TemplateKind]string{
	domain.TemplateWelcome:            "Welcome! Your subscription is active",
	domain.TemplatePaused:             "Your subscription is paused",
	domain.TemplateResumed:            "Your subscription has resumed",
	domain.TemplateExpired:            "Your subscription has completed",
	domain.TemplateOrderConfirmed:     "Your next delivery is confirmed",
	domain.TemplateOrderStatusChanged: "Update on your delivery",
}

// Renderer turns a template kind and its data into an email subject and HTML body
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	for _, kind := range domain.AllTemplateKinds() {
		if tmpl.Lookup(string(kind)+".html") == nil {
			return nil, fmt.Errorf("missing email template %q", kind)
		}
	}
	return &Renderer{templates: tmpl}, nil
}

// Render returns the subject and body for kind
func (r *Renderer) Render(kind domain.TemplateKind, customer domain.Customer, data map[string]any) (string, string, error) {
	tmpl := r.templates.Lookup(string(kind) + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown template %q", kind)
	}

	view := make(map[string]any, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	view["CustomerName"] = displayName(customer)

	var body bytes.Buffer
	if err := tmpl.Execute(&body, view); err != nil {
		return "", "", fmt.Errorf("render %s: %w", kind, err)
	}
	return subjects[kind], body.String(), nil
}

func displayName(c domain.Customer) string {
	if c.Name != "" {
		return c.Name
	}
	return "there"
}
