package notifier

import "time"

// Config controls delivery throttling and retries.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	HistorySize   int
}

type HistoryItem struct {
	At       time.Time `json:"at"`
	EventID  int64     `json:"event_id"`
	OwnerID  int64     `json:"owner_id"`
	Name     string    `json:"name"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
}

// DeliveryEvent is published on the bus after each delivery.
type DeliveryEvent struct {
	EventID  int64     `json:"event_id"`
	OwnerID  int64     `json:"owner_id"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
