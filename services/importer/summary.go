package importer

import (
	"time"

	"bankfeed/lib/banks"
)

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeSessionExpired Outcome = "session-expired"
	OutcomeTransient      Outcome = "transient"
	OutcomeParse          Outcome = "parse"
	OutcomeStorage        Outcome = "storage"
	OutcomeSkipped        Outcome = "skipped"
)

// AccountResult is what one account's import attempt produced. Err is
// nil exactly when Outcome is success.
type AccountResult struct {
	Account      banks.Account
	Outcome      Outcome
	Err          error
	Pages        int
	Transactions int
	Inserted     int
	Updated      int
	Duration     time.Duration
}

// RunSummary aggregates one full run across all configured accounts.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Results  []AccountResult
}

func (s RunSummary) Count(outcome Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed reports whether any account ended in anything but success.
func (s RunSummary) Failed() bool {
	for _, r := range s.Results {
		if r.Outcome != OutcomeSuccess {
			return true
		}
	}
	return false
}
