package models

// OutcomeStatus is the result of writing a single event.
type OutcomeStatus int

const (
	Uploaded OutcomeStatus = iota
	Failed
)

func (s OutcomeStatus) String() string {
	switch s {
	case Uploaded:
		return "uploaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// UploadOutcome describes what happened to one event.
type UploadOutcome struct {
	Status     OutcomeStatus
	UID        string
	Summary    string
	Resource   string // URL the event was written to
	StatusCode int    // HTTP status, 0 on transport failure
	Reason     string // set when Status is Failed
}

// BatchResult aggregates the outcomes of one mail's events.
// Events after the first failure are never attempted and are counted in Skipped.
type BatchResult struct {
	Destination string
	Outcomes    []UploadOutcome
	Skipped     int
}

// Succeeded is true when every event in the batch was uploaded.
func (r BatchResult) Succeeded() bool {
	if r.Skipped > 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Status != Uploaded {
			return false
		}
	}
	return true
}

// UploadedCount returns how many events were actually written.
func (r BatchResult) UploadedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == Uploaded {
			n++
		}
	}
	return n
}

// FailureReason returns the reason of the first failed outcome, if any.
func (r BatchResult) FailureReason() string {
	for _, o := range r.Outcomes {
		if o.Status == Failed {
			return o.Reason
		}
	}
	return ""
}
