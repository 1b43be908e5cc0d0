package uptime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

var ErrNoRecipients = errors.New("no email recipients configured")

type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Compose renders msg as a multipart/alternative email with a plain text
// and an HTML part.
func Compose(msg Message) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		pw, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", msg.From)
	fmt.Fprintf(&out, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", w.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// SMTPMailer sends through an SMTP relay. Auth may be nil for relays that
// accept unauthenticated mail from the local network.
type SMTPMailer struct {
	Addr string
	Auth smtp.Auth
}

func (m SMTPMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	data, err := Compose(msg)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}
	if err := smtp.SendMail(m.Addr, m.Auth, msg.From, msg.To, data); err != nil {
		return fmt.Errorf("send email via %s: %w", m.Addr, err)
	}
	return nil
}
