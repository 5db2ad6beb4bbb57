package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

const (
	TemplateRentPaid         = "rent_paid"
	TemplateOperatorRentPaid = "operator_rent_paid"
	TemplateUnmatchedPayment = "unmatched_payment"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var defaultSubjects = map[string]string{
	TemplateRentPaid:         "Your rent is confirmed",
	TemplateOperatorRentPaid: "Rent payment received",
	TemplateUnmatchedPayment: "Unmatched payment received",
}

// Render executes the named template and picks a subject, preferring
// data["subject"] when present.
func Render(templateName string, data map[string]any) (string, string, error) {
	tmpl := templates.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}

	subject := "Notification from Moviestore"
	if s, ok := defaultSubjects[templateName]; ok {
		subject = s
	}
	if s, ok := data["subject"].(string); ok && s != "" {
		subject = s
	}
	return subject, body.String(), nil
}
