package model

import (
	"time"
)

// LedgerState 账本完整快照，用于持久化与从节点同步
type LedgerState struct {
	Seq            uint64       `json:"seq"`
	Owner          Address      `json:"owner"`
	Address        Address      `json:"address"`
	Fee            Amount       `json:"fee"`
	CommissionOwed Amount       `json:"commissionOwed"`
	Balance        Amount       `json:"balance"`
	Rounds         []RoundState `json:"rounds"`
}

// RoundState 轮次快照
type RoundState struct {
	ID           uint64        `json:"id"`
	OpenedAt     time.Time     `json:"openedAt"`
	LockDuration time.Duration `json:"lockDuration"`
	Candidates   []Candidate   `json:"candidates"`
	Participants []Address     `json:"participants"`
	TotalVotes   uint64        `json:"totalVotes"`
	Pot          Amount        `json:"pot"`
	Settlement   *Settlement   `json:"settlement,omitempty"`
}

// EventType 账本事件类型
type EventType string

const (
	EventRoundOpened         EventType = "round_opened"
	EventVoteCast            EventType = "vote_cast"
	EventRoundClosed         EventType = "round_closed"
	EventCommissionWithdrawn EventType = "commission_withdrawn"
)

// LedgerEvent Kafka 账本事件
type LedgerEvent struct {
	EventID     string      `json:"eventId"`
	Type        EventType   `json:"type"`
	Seq         uint64      `json:"seq"`
	RoundID     uint64      `json:"roundId,omitempty"`
	CandidateID uint32      `json:"candidateId,omitempty"`
	Caller      Address     `json:"caller"`
	Amount      Amount      `json:"amount,omitempty"`
	Transfers   []Transfer  `json:"transfers,omitempty"`
	Settlement  *Settlement `json:"settlement,omitempty"`
	OccurredAt  time.Time   `json:"occurredAt"`
}
