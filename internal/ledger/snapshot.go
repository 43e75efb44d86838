package ledger

import (
	"fmt"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

// Seq 已提交写操作的序号
func (l *Ledger) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Snapshot 导出账本快照
func (l *Ledger) Snapshot() model.LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := model.LedgerState{
		Seq:            l.seq,
		Owner:          l.owner,
		Address:        l.address,
		Fee:            l.fee,
		CommissionOwed: l.commissionOwed,
		Balance:        l.balance,
		Rounds:         make([]model.RoundState, len(l.rounds)),
	}
	for i, r := range l.rounds {
		rs := model.RoundState{
			ID:           r.id,
			OpenedAt:     r.openedAt,
			LockDuration: r.lockDuration,
			Candidates:   append([]model.Candidate(nil), r.candidates...),
			Participants: append([]model.Address(nil), r.voters...),
			TotalVotes:   r.totalVotes,
			Pot:          r.pot,
		}
		if r.settlement != nil {
			s := copySettlement(*r.settlement)
			rs.Settlement = &s
		}
		state.Rounds[i] = rs
	}
	return state
}

// Restore 用快照替换账本状态，快照校验失败时状态不变
func (l *Ledger) Restore(state model.LedgerState) error {
	rounds, err := l.validate(state)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rounds = rounds
	l.commissionOwed = state.CommissionOwed
	l.balance = state.Balance
	l.seq = state.Seq
	return nil
}

func (l *Ledger) validate(state model.LedgerState) ([]*round, error) {
	if state.Owner != l.owner || state.Address != l.address {
		return nil, fmt.Errorf("%w: 快照属于其他账本 (owner=%s, address=%s)", ErrCorruptState, state.Owner, state.Address)
	}
	if state.Fee != l.fee {
		return nil, fmt.Errorf("%w: 快照费用 %s 与配置费用 %s 不一致", ErrCorruptState, state.Fee, l.fee)
	}

	openPots := model.Amount(0)
	rounds := make([]*round, len(state.Rounds))
	for i, rs := range state.Rounds {
		if rs.ID != uint64(i+1) {
			return nil, fmt.Errorf("%w: 轮次序号不连续，位置 %d 为 %d", ErrCorruptState, i+1, rs.ID)
		}
		if len(rs.Candidates) == 0 {
			return nil, fmt.Errorf("%w: 轮次 %d 没有候选人", ErrCorruptState, rs.ID)
		}

		var votes uint64
		for j, c := range rs.Candidates {
			if c.ID != uint32(j+1) {
				return nil, fmt.Errorf("%w: 轮次 %d 候选人序号不连续", ErrCorruptState, rs.ID)
			}
			votes += c.VoteCount
		}
		if votes != rs.TotalVotes || uint64(len(rs.Participants)) != rs.TotalVotes {
			return nil, fmt.Errorf("%w: 轮次 %d 票数不一致", ErrCorruptState, rs.ID)
		}
		if rs.Pot != model.Amount(rs.TotalVotes)*state.Fee {
			return nil, fmt.Errorf("%w: 轮次 %d 奖池金额不一致", ErrCorruptState, rs.ID)
		}

		participants := make(map[model.Address]struct{}, len(rs.Participants))
		for _, p := range rs.Participants {
			if _, dup := participants[p]; dup {
				return nil, fmt.Errorf("%w: 轮次 %d 地址 %s 重复投票", ErrCorruptState, rs.ID, p)
			}
			participants[p] = struct{}{}
		}

		r := &round{
			id:           rs.ID,
			openedAt:     rs.OpenedAt,
			lockDuration: rs.LockDuration,
			candidates:   append([]model.Candidate(nil), rs.Candidates...),
			participants: participants,
			voters:       append([]model.Address(nil), rs.Participants...),
			totalVotes:   rs.TotalVotes,
			pot:          rs.Pot,
		}
		if rs.Settlement != nil {
			s := copySettlement(*rs.Settlement)
			r.settlement = &s
		} else {
			openPots += rs.Pot
		}
		rounds[i] = r
	}

	if state.Balance != openPots+state.CommissionOwed {
		return nil, fmt.Errorf("%w: 余额 %s 不等于未结奖池 %s 加佣金 %s",
			ErrCorruptState, state.Balance, openPots, state.CommissionOwed)
	}
	return rounds, nil
}
