package pipeline

import (
	"fmt"
	"io"

	"mailcal/internal/models"
)

// MailResult is the outcome for one ProcessedMail.
type MailResult struct {
	Mail        *models.ProcessedMail
	Destination string
	Attempted   bool // false in dry-run mode
	Batch       models.BatchResult
}

// Succeeded reports whether every event of the mail was uploaded.
func (r MailResult) Succeeded() bool {
	return r.Attempted && r.Batch.Succeeded()
}

// Report summarizes a pipeline pass.
type Report struct {
	Scanned int
	DryRun  bool
	Results []MailResult
}

// Failed counts mails whose upload did not fully succeed.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Attempted && !res.Batch.Succeeded() {
			n++
		}
	}
	return n
}

// completedMessages returns the UIDs of messages whose mails all uploaded.
func (r *Report) completedMessages() []uint32 {
	ok := make(map[uint32]bool)
	var order []uint32
	for _, res := range r.Results {
		uid := res.Mail.MessageUID
		prev, seen := ok[uid]
		if !seen {
			order = append(order, uid)
			prev = true
		}
		ok[uid] = prev && res.Succeeded()
	}

	var uids []uint32
	for _, uid := range order {
		if ok[uid] {
			uids = append(uids, uid)
		}
	}
	return uids
}

// Print writes a human-readable summary of the pass.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== EMAIL PROCESSING RESULTS ===\n")
	fmt.Fprintf(w, "Scanned %d emails, found %d with calendar events:\n", r.Scanned, len(r.Results))

	for _, res := range r.Results {
		mail := res.Mail
		fmt.Fprintf(w, "\nEmail: %s\n", mail.Subject)
		fmt.Fprintf(w, "   From: %s\n", mail.Sender)
		fmt.Fprintf(w, "   To: %s\n", mail.Recipient)
		fmt.Fprintf(w, "   Attachment: %s\n", mail.Filename)
		fmt.Fprintf(w, "   Events found: %d\n", len(mail.Events))

		for i, ev := range mail.Events {
			summary := ev.Summary()
			if summary == "" {
				summary = "No title"
			}
			fmt.Fprintf(w, "   Event %d: %s\n", i+1, summary)
			if start, err := ev.Start(); err == nil && !start.IsZero() {
				fmt.Fprintf(w, "      Start: %s\n", start.Format("2006-01-02 15:04 MST"))
			}
			location := ev.Location()
			if location == "" {
				location = "No location"
			}
			fmt.Fprintf(w, "      Location: %s\n", location)
		}

		fmt.Fprintf(w, "   Target: %s calendar\n", res.Destination)
		switch {
		case !res.Attempted:
			fmt.Fprintf(w, "   Dry run: nothing uploaded to %s\n", res.Destination)
		case res.Batch.Succeeded():
			fmt.Fprintf(w, "   Successfully uploaded %d event(s) to %s\n", res.Batch.UploadedCount(), res.Destination)
		default:
			fmt.Fprintf(w, "   Failed to upload to %s (%d of %d uploaded, %d skipped): %s\n",
				res.Destination, res.Batch.UploadedCount(), len(mail.Events), res.Batch.Skipped, res.Batch.FailureReason())
		}
	}

	if len(r.Results) == 0 {
		fmt.Fprintf(w, "\nNo emails with .ics attachments found.\n")
	}
}
