package ledger

import (
	"context"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

// Summary 返回合约余额、应付佣金和轮次总数
func (l *Ledger) Summary(ctx context.Context) (model.Summary, error) {
	if err := l.enter(ctx); err != nil {
		return model.Summary{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	return model.Summary{
		Balance:        l.balance,
		CommissionOwed: l.commissionOwed,
		RoundCount:     uint64(len(l.rounds)),
	}, nil
}

// RoundStatuses 返回所有轮次的状态
func (l *Ledger) RoundStatuses(ctx context.Context) ([]model.RoundStatus, error) {
	if err := l.enter(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.rounds) == 0 {
		return nil, ErrNoRoundsYet
	}
	statuses := make([]model.RoundStatus, len(l.rounds))
	for i, r := range l.rounds {
		statuses[i] = r.status()
	}
	return statuses, nil
}

// Round 返回单个轮次的详细信息
func (l *Ledger) Round(ctx context.Context, roundID uint64) (model.RoundInfo, error) {
	if err := l.enter(ctx); err != nil {
		return model.RoundInfo{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, err := l.lookup(roundID)
	if err != nil {
		return model.RoundInfo{}, err
	}
	info := model.RoundInfo{
		RoundStatus: r.status(),
		Pot:         r.pot,
		Candidates:  append([]model.Candidate(nil), r.candidates...),
	}
	if r.settlement != nil {
		s := copySettlement(*r.settlement)
		info.Settlement = &s
	}
	return info, nil
}

// Candidates 返回轮次的候选人及当前票数
func (l *Ledger) Candidates(ctx context.Context, roundID uint64) ([]model.Candidate, error) {
	if err := l.enter(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, err := l.lookup(roundID)
	if err != nil {
		return nil, err
	}
	return append([]model.Candidate(nil), r.candidates...), nil
}

// Winners 返回已关闭轮次的获胜者，轮次未关闭时获胜者未定义
func (l *Ledger) Winners(ctx context.Context, roundID uint64) ([]model.Candidate, error) {
	if err := l.enter(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, err := l.lookup(roundID)
	if err != nil {
		return nil, err
	}
	if !r.closed() {
		return nil, ErrRoundStillOpen
	}
	return append([]model.Candidate(nil), r.settlement.Winners...), nil
}
