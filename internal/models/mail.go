package models

// Attachment is a single MIME part that carried a filename.
type Attachment struct {
	Filename string
	Data     []byte
}

// InboundMessage is what the mailbox hands to the pipeline for one fetched message.
type InboundMessage struct {
	UID         uint32 // IMAP UID, used only to flag the message after processing
	Subject     string
	Sender      string
	Recipient   string // may carry a display name, e.g. "Jane Doe <jane@x.org>"
	Attachments []Attachment
}

// ProcessedMail groups the events extracted from one calendar attachment.
type ProcessedMail struct {
	MessageUID    uint32
	Subject       string
	Sender        string
	Recipient     string
	Filename      string
	RawAttachment string
	Events        []*CalendarEvent
}
