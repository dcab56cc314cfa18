package inbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/helpdesk-kit/ticket-service/internal/config"
)

// Mailbox is one open mailbox session.
type Mailbox interface {
	Unread(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// Dialer opens mailbox sessions.
type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

// IMAPDialer connects over implicit TLS and selects the configured mailbox.
type IMAPDialer struct {
	cfg    config.IMAPConfig
	logger *zap.Logger
}

// NewIMAPDialer builds a dialer for cfg.
func NewIMAPDialer(cfg config.IMAPConfig, logger *zap.Logger) *IMAPDialer {
	return &IMAPDialer{cfg: cfg, logger: logger}
}

// Dial connects, logs in and selects the mailbox. A half-open session is logged out before returning.
func (d *IMAPDialer) Dial(ctx context.Context) (Mailbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: d.cfg.DialTimeout()}
	c, err := client.DialWithDialerTLS(dialer, d.cfg.Addr(), &tls.Config{ServerName: d.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.cfg.Addr(), err)
	}
	c.Timeout = d.cfg.DialTimeout()

	session := &imapMailbox{client: c, logger: d.logger}
	if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("login as %s: %w", d.cfg.Username, err)
	}
	if _, err := c.Select(d.cfg.Mailbox, false); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("select %s: %w", d.cfg.Mailbox, err)
	}
	return session, nil
}

type imapMailbox struct {
	client *client.Client
	logger *zap.Logger
}

func (m *imapMailbox) Unread(ctx context.Context) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return m.client.UidSearch(criteria)
}

// Fetch uses BODY.PEEK[] so reading does not set \Seen.
func (m *imapMailbox) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil || raw != nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read uid %d: %w", uid, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("fetch uid %d: %w", uid, errMessageGone)
	}
	return raw, nil
}

func (m *imapMailbox) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return m.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

func (m *imapMailbox) Close() error {
	if err := m.client.Logout(); err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return err
	}
	return nil
}

var errMessageGone = errors.New("message no longer in mailbox")
