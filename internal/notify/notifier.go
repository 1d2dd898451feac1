// Package notify renders message templates and delivers them by email and
// by short-message channels.
package notify

import (
	"context"
	"fmt"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
)

// DefaultSiteName is used until the site name setting is changed.
const DefaultSiteName = "StockWatch"

// Notifier renders templates and hands them to a Mailer.
type Notifier struct {
	Mailer    Mailer
	Templates *TemplateStore
	Settings  *database.Settings
}

// New wires a Notifier. mailer should already be wrapped in LoggingMailer
// when delivery must be recorded.
func New(mailer Mailer, settings *database.Settings) *Notifier {
	return &Notifier{Mailer: mailer, Templates: &TemplateStore{Settings: settings}, Settings: settings}
}

// Rendered is a template after placeholder substitution.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Render fills template name with vars. Pro-only placeholders are blanked
// when f is closed.
func (n *Notifier) Render(ctx context.Context, name string, vars Vars, f license.Features) (*Rendered, error) {
	tpl, err := n.Templates.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	site := n.Settings.Get(ctx, database.KeySiteName, DefaultSiteName)
	v := Gate(vars, f)
	if _, ok := v["site_name"]; !ok {
		v["site_name"] = site
	}
	return &Rendered{
		Subject: Render(tpl.Subject, v),
		HTML:    Layout(site, Render(tpl.Body, escape(v))),
		Text:    Render(tpl.Body, v),
	}, nil
}

// Send renders template name and emails it to to.
func (n *Notifier) Send(ctx context.Context, name, to string, vars Vars, f license.Features, attachments ...Attachment) error {
	if to == "" {
		return fmt.Errorf("%s: no recipient", name)
	}
	r, err := n.Render(ctx, name, vars, f)
	if err != nil {
		return err
	}
	return n.Mailer.Send(ctx, Message{
		To:          to,
		Subject:     r.Subject,
		HTMLBody:    r.HTML,
		EventType:   name,
		Attachments: attachments,
	})
}
