package api

import (
	"time"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// RecordView is the JSON form of a stored record.
type RecordView struct {
	Address    string `json:"address"`
	Owner      string `json:"owner"`
	Submitter  string `json:"submitter"`
	Commitment string `json:"commitment"`
	Timestamp  int64  `json:"timestamp"`
	Time       string `json:"time"`
}

// NewRecordView renders h.
func NewRecordView(h notary.RecordHandle) RecordView {
	return RecordView{
		Address:    h.Address.String(),
		Owner:      h.Owner.String(),
		Submitter:  h.Record.Submitter.String(),
		Commitment: h.Record.Commitment.String(),
		Timestamp:  h.Record.Timestamp,
		Time:       time.Unix(h.Record.Timestamp, 0).UTC().Format(time.RFC3339),
	}
}

// RecordList wraps lookup results.
type RecordList struct {
	Records []RecordView `json:"records"`
}

type BalanceView struct {
	Identity string `json:"identity"`
	Balance  uint64 `json:"balance"`
}

type ConfigView struct {
	Authority string `json:"authority"`
	Fee       uint64 `json:"fee"`
}

// AirdropRequest mints Amount minor units into Identity.
type AirdropRequest struct {
	Identity string `json:"identity"`
	Amount   uint64 `json:"amount"`
}
