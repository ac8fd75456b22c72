package model

// Event types emitted by the ledger after every committed state transition
const (
	EventStakeOpened       = "stake.opened"
	EventRewardClaimed     = "stake.reward_claimed"
	EventStakeWithdrawn    = "stake.withdrawn"
	EventStakeRestaked     = "stake.restaked"
	EventCompoundAdded     = "compound.reward_added"
	EventCompoundFlushed   = "compound.flushed"
	EventCompoundWithdrawn = "compound.withdrawn"
	EventRateChanged       = "catalog.rate_changed"
	EventPeriodToggled     = "catalog.period_toggled"
	EventPoolFunded        = "pool.funded"
	EventPoolDrained       = "pool.drained"
)

// Event is a structured notification for off-chain observers. Amounts in
// Attributes are decimal base-unit strings.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Account    string            `json:"account,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or the empty string
func (e Event) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
