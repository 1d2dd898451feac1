package notify

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"stockwatch/internal/database"

	"github.com/google/uuid"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	EventType   string
	Attachments []Attachment
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// From is the sender identity.
type From struct {
	Name    string
	Address string
}

// BuildMIME renders msg as an RFC 5322 message. With attachments it becomes
// multipart/mixed.
func BuildMIME(from From, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	domain := "localhost"
	if i := strings.LastIndex(from.Address, "@"); i >= 0 {
		domain = from.Address[i+1:]
	}
	fmt.Fprintf(&buf, "From: %s\r\n", mime.QEncoding.Encode("utf-8", from.Name)+" <"+from.Address+">")
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.HTMLBody)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	part.Write([]byte(msg.HTMLBody))

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", ct)
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		enc := base64.StdEncoding.EncodeToString(a.Data)
		for len(enc) > 76 {
			part.Write([]byte(enc[:76] + "\r\n"))
			enc = enc[76:]
		}
		part.Write([]byte(enc + "\r\n"))
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SMTPSendFunc matches smtp.SendMail.
type SMTPSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     From
	// SendFunc is smtp.SendMail unless overridden in tests.
	SendFunc SMTPSendFunc
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	raw, err := BuildMIME(m.From, msg)
	if err != nil {
		return err
	}
	from := m.From.Address
	if from == "" {
		from = m.User
	}
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	send := m.SendFunc
	if send == nil {
		send = smtp.SendMail
	}
	return send(fmt.Sprintf("%s:%d", m.Host, m.Port), auth, from, []string{msg.To}, raw)
}

// LogMailer only writes messages to the process log. Used when no transport
// is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("notify: [log mailer] to=%s subject=%q attachments=%d", msg.To, msg.Subject, len(msg.Attachments))
	return nil
}

// LoggingMailer records every attempt in email_log before returning the
// transport's result.
type LoggingMailer struct {
	DB   *sql.DB
	Next Mailer
}

func (m *LoggingMailer) Send(ctx context.Context, msg Message) error {
	sendErr := m.Next.Send(ctx, msg)
	status, errStr := "sent", ""
	if sendErr != nil {
		status, errStr = "failed", sendErr.Error()
	}
	if _, err := m.DB.ExecContext(ctx, "INSERT INTO email_log (to_address, subject, body, event_type, status, error, sent_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.To, msg.Subject, msg.HTMLBody, msg.EventType, status, errStr, database.FormatTime(time.Now())); err != nil {
		log.Printf("notify: email_log insert failed: %v", err)
	}
	return sendErr
}
