package ledger

import (
	"time"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

// settleRound 计算轮次结算：票数最高的候选人（按名单顺序）平分奖金，
// 整除余数并入佣金
func settleRound(
	roundID uint64,
	candidates []model.Candidate,
	pot model.Amount,
	from model.Address,
	closedAt time.Time,
) model.Settlement {
	var maxVotes uint64
	for _, c := range candidates {
		if c.VoteCount > maxVotes {
			maxVotes = c.VoteCount
		}
	}

	winners := make([]model.Candidate, 0, 1)
	for _, c := range candidates {
		if c.VoteCount == maxVotes {
			winners = append(winners, c)
		}
	}

	commission := pot / CommissionDivisor
	prize := pot - commission
	share, remainder := model.Amount(0), prize
	if n := model.Amount(len(winners)); n > 0 {
		share = prize / n
		remainder = prize - share*n
	}

	transfers := make([]model.Transfer, 0, len(winners))
	for _, w := range winners {
		transfers = append(transfers, model.Transfer{From: from, To: w.Address, Amount: share})
	}

	return model.Settlement{
		RoundID:    roundID,
		ClosedAt:   closedAt,
		Pot:        pot,
		Commission: commission,
		Prize:      prize,
		Share:      share,
		Remainder:  remainder,
		Winners:    winners,
		Transfers:  transfers,
	}
}

func copySettlement(s model.Settlement) model.Settlement {
	s.Winners = append([]model.Candidate(nil), s.Winners...)
	s.Transfers = append([]model.Transfer(nil), s.Transfers...)
	return s
}
