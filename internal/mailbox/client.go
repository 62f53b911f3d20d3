// Package mailbox fetches candidate messages from an IMAP folder.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"

	"mailcal/internal/models"
)

// Security selects how the IMAP connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityNone     Security = "none"
)

// Options holds the IMAP connection settings.
type Options struct {
	Host               string
	Port               string
	Security           Security
	Folder             string
	Username           string
	Password           string
	TokenSource        oauth2.TokenSource // when set, OAUTHBEARER is used instead of LOGIN
	InsecureSkipVerify bool
}

// IMAPClient wraps go-imap v2. Each operation opens its own connection.
type IMAPClient struct {
	logger *slog.Logger
	opts   Options
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(logger *slog.Logger, opts Options) *IMAPClient {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if opts.Security == "" {
		opts.Security = SecurityStartTLS
	}
	return &IMAPClient{logger: logger, opts: opts}
}

// connect dials the server, authenticates and selects the configured folder.
// The caller must log out of the returned client.
func (c *IMAPClient) connect(ctx context.Context) (*imapclient.Client, *imap.SelectData, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(c.opts.Host, c.opts.Port)
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         c.opts.Host,
			InsecureSkipVerify: c.opts.InsecureSkipVerify,
		},
	}

	c.logger.Info("Connecting to IMAP server", "addr", addr, "security", c.opts.Security)

	var client *imapclient.Client
	var err error
	switch c.opts.Security {
	case SecurityTLS:
		client, err = imapclient.DialTLS(addr, options)
	case SecurityNone:
		client, err = imapclient.DialInsecure(addr, options)
	default:
		client, err = imapclient.DialStartTLS(addr, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := c.authenticate(client); err != nil {
		_ = client.Logout().Wait()
		return nil, nil, err
	}

	data, err := client.Select(c.opts.Folder, nil).Wait()
	if err != nil {
		_ = client.Logout().Wait()
		return nil, nil, fmt.Errorf("selecting %s: %w", c.opts.Folder, err)
	}
	return client, data, nil
}

func (c *IMAPClient) authenticate(client *imapclient.Client) error {
	if c.opts.TokenSource != nil {
		token, err := c.opts.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("refreshing oauth token for %s: %w", c.opts.Username, err)
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.opts.Username,
			Token:    token.AccessToken,
		})
		if err := client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("oauth authentication failed for %s: %w", c.opts.Username, err)
		}
		return nil
	}

	if err := client.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		return fmt.Errorf("authentication failed for %s: %w", c.opts.Username, err)
	}
	return nil
}

// FetchMessages returns every message in the folder with its attachments.
// Bodies are fetched with PEEK so the \Seen flag is left alone.
// Connection and protocol errors are returned; a single message that cannot
// be parsed is logged and skipped.
func (c *IMAPClient) FetchMessages(ctx context.Context) ([]models.InboundMessage, error) {
	client, selected, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	c.logger.Info("Selected folder", "folder", c.opts.Folder, "messages", selected.NumMessages)
	if selected.NumMessages == 0 {
		return nil, nil
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})

	var messages []models.InboundMessage
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			c.logger.Warn("Failed to read message", "error", err)
			continue
		}

		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}
		parsed, err := ParseMessage(uint32(buf.UID), raw)
		if err != nil {
			c.logger.Warn("Failed to parse message", "uid", buf.UID, "error", err)
			continue
		}
		c.logger.Debug("Fetched message",
			"subject", parsed.Subject,
			"from", parsed.Sender,
			"to", parsed.Recipient,
			"attachments", len(parsed.Attachments))
		messages = append(messages, parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	c.logger.Info("Fetched messages", "folder", c.opts.Folder, "count", len(messages))
	return messages, nil
}

// MarkSeen adds the \Seen flag to the given messages.
func (c *IMAPClient) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	client, _, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	set := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		set = append(set, imap.UID(uid))
	}

	storeCmd := client.Store(imap.UIDSetNum(set...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking messages seen: %w", err)
	}
	return nil
}
