// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify sends plain-text notification mail about failed runs.
package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// subjectPrefix marks all notification mail in the recipient's inbox.
const subjectPrefix = "TACA - "

// ErrNoReceiver indicates mail is requested but no recipient is configured.
var ErrNoReceiver = errors.New("no mail recipient configured")

// sendMail is swapped out in tests.
var sendMail = smtp.SendMail

// Mailer sends notifications through a plain SMTP host.
type Mailer struct {
	// Host is the SMTP endpoint ("localhost:25" style)
	Host string

	// From is the sender address
	From string

	// To is the recipient address
	To string
}

// New creates a Mailer. The recipient must be set; host and sender fall
// back to localhost defaults.
func New(host, from, to string) (*Mailer, error) {
	if to == "" {
		return nil, ErrNoReceiver
	}
	if host == "" {
		host = "localhost:25"
	}
	if from == "" {
		from = "taca@localhost"
	}
	return &Mailer{Host: host, From: from, To: to}, nil
}

// Send delivers a plain-text message. The subject gets the standard
// prefix so recipients can filter on it.
func (m *Mailer) Send(subject, body string) error {
	msg := Message(m.From, m.To, subject, body, time.Now())
	if err := sendMail(m.Host, nil, m.From, []string{m.To}, msg); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", m.Host, err)
	}
	return nil
}

// Message formats an RFC 5322 plain-text message.
func Message(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s%s\r\n", subjectPrefix, subject)
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
