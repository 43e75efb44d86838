package model

import (
	"time"
)

// Candidate 候选人快照
type Candidate struct {
	ID        uint32  `json:"id"`
	Address   Address `json:"address"`
	Name      string  `json:"name"`
	VoteCount uint64  `json:"voteCount"`
}

// RoundStatus 投票轮次状态
type RoundStatus struct {
	ID           uint64        `json:"id"`
	OpenedAt     time.Time     `json:"openedAt"`
	ClosedAt     time.Time     `json:"closedAt"`
	LockDuration time.Duration `json:"lockDuration"`
	TotalVotes   uint64        `json:"totalVotes"`
}

// Closed 轮次是否已关闭
func (s RoundStatus) Closed() bool {
	return !s.ClosedAt.IsZero()
}

// ClosableAt 最早可关闭时间
func (s RoundStatus) ClosableAt() time.Time {
	return s.OpenedAt.Add(s.LockDuration)
}

// RoundInfo 单个轮次的详细信息
type RoundInfo struct {
	RoundStatus
	Pot        Amount      `json:"pot"`
	Candidates []Candidate `json:"candidates"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// Summary 账本汇总
type Summary struct {
	Balance        Amount `json:"balance"`
	CommissionOwed Amount `json:"commissionOwed"`
	RoundCount     uint64 `json:"roundCount"`
}

// Transfer 一笔资金划转
type Transfer struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Amount Amount  `json:"amount"`
}

// Settlement 轮次关闭时的结算结果
type Settlement struct {
	RoundID    uint64      `json:"roundId"`
	ClosedAt   time.Time   `json:"closedAt"`
	Pot        Amount      `json:"pot"`
	Commission Amount      `json:"commission"`
	Prize      Amount      `json:"prize"`
	Share      Amount      `json:"share"`
	Remainder  Amount      `json:"remainder"`
	Winners    []Candidate `json:"winners"`
	Transfers  []Transfer  `json:"transfers"`
}

// Distributed 实际发放给获胜者的总额
func (s Settlement) Distributed() Amount {
	return s.Share * Amount(len(s.Winners))
}
