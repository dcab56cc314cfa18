package inbox

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message is an inbound email reduced to what a ticket needs.
type Message struct {
	Subject string
	Sender  Sender
	Body    string
}

// ParseMessage reads an RFC 5322 message. The body prefers text/plain, then
// text/html, then the first inline part of any type.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	if mr == nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	subject, err := mr.Header.Subject()
	if err != nil {
		subject = mr.Header.Get("Subject")
	}

	var plain, html, fallback string
	var seenInline bool
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return Message{}, fmt.Errorf("read part: %w", err)
		}
		if part == nil {
			continue
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		raw, err := io.ReadAll(part.Body)
		if err != nil {
			return Message{}, fmt.Errorf("read part body: %w", err)
		}
		contentType, _, _ := header.ContentType()
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(raw)
		case contentType == "text/html" && html == "":
			html = string(raw)
		case !seenInline:
			fallback = string(raw)
		}
		seenInline = true
	}

	body := plain
	if strings.TrimSpace(body) == "" {
		body = html
	}
	if strings.TrimSpace(body) == "" {
		body = fallback
	}

	return Message{
		Subject: strings.TrimSpace(subject),
		Sender:  ParseSender(mr.Header.Get("From")),
		Body:    strings.TrimSpace(body),
	}, nil
}
