package graph

import (
	"strconv"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// CandidateResolver 候选人解析器
type CandidateResolver struct {
	candidate model.Candidate
}

func candidateResolvers(candidates []model.Candidate) []*CandidateResolver {
	resolvers := make([]*CandidateResolver, len(candidates))
	for i, c := range candidates {
		resolvers[i] = &CandidateResolver{candidate: c}
	}
	return resolvers
}

func (r *CandidateResolver) ID() int32 {
	return int32(r.candidate.ID)
}

func (r *CandidateResolver) Address() string {
	return r.candidate.Address.String()
}

func (r *CandidateResolver) Name() string {
	return r.candidate.Name
}

func (r *CandidateResolver) VoteCount() int32 {
	return int32(r.candidate.VoteCount)
}

// RoundStatusResolver 轮次状态解析器
type RoundStatusResolver struct {
	status model.RoundStatus
}

func (r *RoundStatusResolver) ID() graphql.ID {
	return formatRoundID(r.status.ID)
}

func (r *RoundStatusResolver) OpenedAt() string {
	return formatTime(r.status.OpenedAt)
}

func (r *RoundStatusResolver) ClosedAt() *string {
	if !r.status.Closed() {
		return nil
	}
	s := formatTime(r.status.ClosedAt)
	return &s
}

func (r *RoundStatusResolver) ClosableAt() string {
	return formatTime(r.status.ClosableAt())
}

func (r *RoundStatusResolver) LockSeconds() int32 {
	return int32(r.status.LockDuration / time.Second)
}

func (r *RoundStatusResolver) TotalVotes() int32 {
	return int32(r.status.TotalVotes)
}

func (r *RoundStatusResolver) Closed() bool {
	return r.status.Closed()
}

// RoundResolver 轮次详情解析器
type RoundResolver struct {
	info model.RoundInfo
}

func (r *RoundResolver) Status() *RoundStatusResolver {
	return &RoundStatusResolver{status: r.info.RoundStatus}
}

func (r *RoundResolver) Pot() string {
	return r.info.Pot.String()
}

func (r *RoundResolver) Candidates() []*CandidateResolver {
	return candidateResolvers(r.info.Candidates)
}

func (r *RoundResolver) Settlement() *SettlementResolver {
	if r.info.Settlement == nil {
		return nil
	}
	return &SettlementResolver{settlement: *r.info.Settlement}
}

// TransferResolver 划转解析器
type TransferResolver struct {
	transfer model.Transfer
}

func (r *TransferResolver) From() string {
	return r.transfer.From.String()
}

func (r *TransferResolver) To() string {
	return r.transfer.To.String()
}

func (r *TransferResolver) Amount() string {
	return r.transfer.Amount.String()
}

// SettlementResolver 结算解析器
type SettlementResolver struct {
	settlement model.Settlement
}

func (r *SettlementResolver) RoundID() graphql.ID {
	return formatRoundID(r.settlement.RoundID)
}

func (r *SettlementResolver) ClosedAt() string {
	return formatTime(r.settlement.ClosedAt)
}

func (r *SettlementResolver) Pot() string {
	return r.settlement.Pot.String()
}

func (r *SettlementResolver) Commission() string {
	return r.settlement.Commission.String()
}

func (r *SettlementResolver) Prize() string {
	return r.settlement.Prize.String()
}

func (r *SettlementResolver) Share() string {
	return r.settlement.Share.String()
}

func (r *SettlementResolver) Remainder() string {
	return r.settlement.Remainder.String()
}

func (r *SettlementResolver) Winners() []*CandidateResolver {
	return candidateResolvers(r.settlement.Winners)
}

func (r *SettlementResolver) Transfers() []*TransferResolver {
	resolvers := make([]*TransferResolver, len(r.settlement.Transfers))
	for i, t := range r.settlement.Transfers {
		resolvers[i] = &TransferResolver{transfer: t}
	}
	return resolvers
}

// SummaryResolver 账本汇总解析器
type SummaryResolver struct {
	summary model.Summary
}

func (r *SummaryResolver) Balance() string {
	return r.summary.Balance.String()
}

func (r *SummaryResolver) CommissionOwed() string {
	return r.summary.CommissionOwed.String()
}

func (r *SummaryResolver) RoundCount() int32 {
	return int32(r.summary.RoundCount)
}

// LedgerEventResolver 审计日志解析器
type LedgerEventResolver struct {
	event *model.LedgerEvent
}

func (r *LedgerEventResolver) EventID() graphql.ID {
	return graphql.ID(r.event.EventID)
}

func (r *LedgerEventResolver) Type() string {
	return string(r.event.Type)
}

func (r *LedgerEventResolver) Seq() string {
	return strconv.FormatUint(r.event.Seq, 10)
}

func (r *LedgerEventResolver) RoundID() *graphql.ID {
	if r.event.RoundID == 0 {
		return nil
	}
	id := formatRoundID(r.event.RoundID)
	return &id
}

func (r *LedgerEventResolver) CandidateID() *int32 {
	if r.event.CandidateID == 0 {
		return nil
	}
	id := int32(r.event.CandidateID)
	return &id
}

func (r *LedgerEventResolver) Caller() string {
	return r.event.Caller.String()
}

func (r *LedgerEventResolver) Amount() string {
	return r.event.Amount.String()
}

func (r *LedgerEventResolver) OccurredAt() string {
	return formatTime(r.event.OccurredAt)
}
