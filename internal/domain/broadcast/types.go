package broadcast

import (
	"errors"
	"fmt"
	"time"
)

// Template is the message being fanned out: the message an admin replied to
// with /broadcast. It is copied, not forwarded, to every recipient.
type Template struct {
	ChatID    int64
	MessageID int
}

// Report is the final tally of a broadcast job.
type Report struct {
	Total        int
	Successful   int
	Blocked      int
	Deleted      int
	Unsuccessful int
}

// Outcome is how a single recipient finished.
type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeDeactivated Outcome = "deactivated"
	OutcomeFailed      Outcome = "failed"
	OutcomeAborted     Outcome = "aborted"
)

// Record adds one finished recipient to the tally.
func (r *Report) Record(o Outcome) {
	switch o {
	case OutcomeDelivered:
		r.Successful++
	case OutcomeBlocked:
		r.Blocked++
	case OutcomeDeactivated:
		r.Deleted++
	case OutcomeFailed:
		r.Unsuccessful++
	default:
		return
	}
	r.Total++
}

// Consistent reports whether Total equals the sum of the outcome counters.
func (r Report) Consistent() bool {
	return r.Total == r.Successful+r.Blocked+r.Deleted+r.Unsuccessful
}

// Render formats the report as the HTML status block shown to the admin.
func (r Report) Render() string {
	return fmt.Sprintf(
		"<b>Broadcast Completed</b>\n"+
			"Total Users: <code>%d</code>\n"+
			"Successful: <code>%d</code>\n"+
			"Blocked: <code>%d</code>\n"+
			"Deleted Accounts: <code>%d</code>\n"+
			"Failed: <code>%d</code>",
		r.Total, r.Successful, r.Blocked, r.Deleted, r.Unsuccessful,
	)
}

var (
	ErrRecipientBlocked     = errors.New("recipient blocked the bot")
	ErrRecipientDeactivated = errors.New("recipient account is deactivated")
)

// RateLimitError means delivery may be retried only after Wait has elapsed.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate limited, retry after %s", e.Wait)
	}
	return fmt.Sprintf("rate limited, retry after %s: %v", e.Wait, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AbortError terminates a broadcast job before every recipient was processed.
// Partial holds the tally of the recipients finished before RecipientID.
type AbortError struct {
	RecipientID int64
	Partial     Report
	Err         error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("broadcast aborted at recipient %d: %v", e.RecipientID, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
