package email

import (
	"context"

	"go.uber.org/zap"
)

// Provider delivers HTML mail to a list of recipients.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// LogProvider renders templates but only logs the envelope. It backs the
// "noop" provider so a bad template still fails outside production.
type LogProvider struct {
	Log *zap.Logger
}

func (p *LogProvider) Send(_ context.Context, to []string, subject string, _ string) error {
	if p.Log != nil {
		p.Log.Debug("email not sent", zap.Strings("to", to), zap.String("subject", subject))
	}
	return nil
}

func (p *LogProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	subject, _, err := Render(templateName, data)
	if err != nil {
		return err
	}
	return p.Send(ctx, to, subject, "")
}
