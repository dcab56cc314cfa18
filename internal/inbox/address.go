package inbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Sender is the From header of an inbound message: ParsedSender or UnparseableSender.
type Sender interface {
	String() string
	sender()
}

// ParsedSender is a well-formed From header. Name may be empty.
type ParsedSender struct {
	Name    string
	Address string
}

// UnparseableSender keeps the raw header of a From value that could not be parsed.
type UnparseableSender struct {
	Raw string
	Err error
}

func (ParsedSender) sender()      {}
func (UnparseableSender) sender() {}

func (s ParsedSender) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

func (s UnparseableSender) String() string { return s.Raw }

// ParseSender decodes a From header value, including RFC 2047 encoded names.
func ParseSender(raw string) Sender {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnparseableSender{Raw: raw, Err: errEmptySender}
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return UnparseableSender{Raw: raw, Err: err}
	}
	return ParsedSender{Name: addr.Name, Address: addr.Address}
}

// AllowList accepts senders whose display name and address both equal a
// configured entry exactly.
type AllowList struct {
	entries []ParsedSender
}

// ParseAllowList builds an allow-list from "Name <address>" entries.
func ParseAllowList(entries []string) (AllowList, error) {
	var list AllowList
	for _, entry := range entries {
		parsed, ok := ParseSender(entry).(ParsedSender)
		if !ok {
			return AllowList{}, fmt.Errorf("invalid allow-list entry %q", entry)
		}
		list.entries = append(list.entries, parsed)
	}
	return list, nil
}

// Len is the number of entries.
func (a AllowList) Len() int { return len(a.entries) }

// Allows reports whether s may open tickets by email.
func (a AllowList) Allows(s Sender) bool {
	parsed, ok := s.(ParsedSender)
	if !ok {
		return false
	}
	for _, entry := range a.entries {
		if entry == parsed {
			return true
		}
	}
	return false
}

var errEmptySender = errors.New("empty sender")
