package email

import (
	"context"
	"fmt"
	"strings"

	"bizpulse/internal/logger"
)

// Message is a send request before rendering.
type Message struct {
	To        string
	Subject   string
	Template  string
	Variables map[string]interface{}
}

type Mailer struct {
	from     string
	renderer *Renderer
	registry *Registry
	logger   logger.Logger
}

func NewMailer(from string, renderer *Renderer, registry *Registry, log logger.Logger) *Mailer {
	return &Mailer{from: from, renderer: renderer, registry: registry, logger: log}
}

// ResolveTemplate walks {category}.{tier}, then {category}, then default.
func (m *Mailer) ResolveTemplate(category, tier string) string {
	return m.renderer.Resolve(category+"."+tier, category)
}

func (m *Mailer) Send(ctx context.Context, msg Message) error {
	html, err := m.renderer.Render(msg.Template, msg.Variables)
	if err != nil {
		return err
	}

	provider, err := m.registry.Send(ctx, &Request{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    plainText(msg.Variables),
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.DebugwCtx(ctx, "Email sent",
		"provider", provider,
		"template", msg.Template,
	)
	return nil
}

func plainText(vars map[string]interface{}) string {
	a, _ := vars["alert"].(map[string]interface{})
	var b strings.Builder
	for _, key := range []string{"title", "description"} {
		if v, ok := a[key].(string); ok && v != "" {
			b.WriteString(v)
			b.WriteString("\n\n")
		}
	}
	if url, ok := a["action_url"].(string); ok && url != "" {
		b.WriteString("Review: ")
		b.WriteString(url)
		b.WriteString("\n")
	}
	return b.String()
}
