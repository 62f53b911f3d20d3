package mailbox

import (
	"bytes"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // decode non UTF-8 parts
	"github.com/emersion/go-message/mail"

	"mailcal/internal/models"
)

// ParseMessage turns a raw RFC 5322 message into an InboundMessage. Every
// MIME part carrying a filename is returned as an attachment, whether it
// was sent as an attachment or inline (calendar invites often are).
// Parts that fail to decode are skipped; an error is returned only when
// the message header itself cannot be read.
func ParseMessage(uid uint32, raw []byte) (models.InboundMessage, error) {
	msg := models.InboundMessage{UID: uid}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && mr == nil {
		return msg, fmt.Errorf("failed to read message header: %w", err)
	}
	defer mr.Close()

	msg.Subject, _ = mr.Header.Subject()
	msg.Sender = firstAddress(mr.Header, "From")
	msg.Recipient = firstAddress(mr.Header, "To")

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// A broken part ends the walk; what was read so far is kept.
			break
		}

		filename := partFilename(part.Header)
		if filename == "" {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename: filename,
			Data:     data,
		})
	}

	return msg, nil
}

func partFilename(h mail.PartHeader) string {
	var filename string
	switch h := h.(type) {
	case *mail.AttachmentHeader:
		filename, _ = h.Filename()
	case *mail.InlineHeader:
		filename, _ = (&mail.AttachmentHeader{Header: h.Header}).Filename()
	}
	return filename
}

// firstAddress formats the first address of a header field as
// "Name <addr>" or just "addr". Unparseable fields are returned verbatim.
func firstAddress(h mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return h.Get(key)
	}
	a := addrs[0]
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}
