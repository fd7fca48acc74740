package processor

// Outcome is what happened to one message of a batch.
type Outcome int

const (
	// OutcomePersisted: the conditional create stored a new record.
	OutcomePersisted Outcome = iota + 1
	// OutcomeDuplicate: a record already existed; the delivery was a redelivery.
	OutcomeDuplicate
	// OutcomePoison: the body could not be decoded and the message was consumed.
	OutcomePoison
)

func (o Outcome) String() string {
	switch o {
	case OutcomePersisted:
		return "PERSISTED"
	case OutcomeDuplicate:
		return "DUPLICATE"
	case OutcomePoison:
		return "POISON"
	default:
		return "UNKNOWN"
	}
}

// Result describes one handled message.
type Result struct {
	MessageID     string
	OrderID       string
	CorrelationID string
	Outcome       Outcome
}

// BatchResult lists the messages handled before the batch finished or failed.
type BatchResult struct {
	Results []Result
}

// Count returns how many results have the given outcome.
func (b BatchResult) Count(o Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// PoisonPolicy decides what a malformed body does to its batch.
type PoisonPolicy string

const (
	// PoisonDiscard logs the message and lets it be acknowledged with the batch.
	PoisonDiscard PoisonPolicy = "discard"
	// PoisonRetry fails the batch so the message ends on the dead-letter queue.
	PoisonRetry PoisonPolicy = "retry"
)
