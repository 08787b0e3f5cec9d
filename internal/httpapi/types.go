package httpapi

import (
	"telebridge/internal/domain"
	"telebridge/internal/journal"
)

// StatusResponse is the session status payload.
type StatusResponse struct {
	Connected    bool                    `json:"connected"`
	Broker       string                  `json:"broker,omitempty"`
	Server       string                  `json:"server,omitempty"`
	StartCapital float64                 `json:"start_capital,omitempty"`
	PendingSL    float64                 `json:"pending_sl"`
	PendingTP    float64                 `json:"pending_tp"`
	Account      *domain.AccountSnapshot `json:"account,omitempty"`
}

// BrokerSummary is one configured broker profile without credentials.
type BrokerSummary struct {
	Name   string `json:"name"`
	Server string `json:"server"`
	Tier   string `json:"tier"`
}

// BrokersResponse lists the configured broker profiles.
type BrokersResponse struct {
	Active  string          `json:"active"`
	Brokers []BrokerSummary `json:"brokers"`
}

// SwitchBrokerRequest selects a new active broker profile.
type SwitchBrokerRequest struct {
	Name string `json:"name"`
}

// JournalResponse carries recent journal entries, newest first.
type JournalResponse struct {
	Entries []journal.Entry `json:"entries"`
}

// LoggingRequest changes the runtime log level.
type LoggingRequest struct {
	Level string `json:"level"`
}
