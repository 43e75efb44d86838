package graph

import (
	"context"
	"fmt"
	"strconv"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

// LedgerAPI GraphQL 层依赖的账本服务
type LedgerAPI interface {
	Owner() model.Address
	Fee() model.Amount
	IsWriter() bool

	OpenRound(ctx context.Context, caller model.Address, addresses []model.Address, names []string, lockSelector uint8) (uint64, error)
	CastVote(ctx context.Context, caller model.Address, roundID uint64, candidateID uint32, value model.Amount) error
	CloseRound(ctx context.Context, caller model.Address, roundID uint64) (*model.Settlement, error)
	WithdrawCommission(ctx context.Context, caller model.Address) (model.Transfer, error)
	CheckParticipation(ctx context.Context, caller model.Address, roundID uint64, address model.Address) (bool, error)

	Summary(ctx context.Context) (model.Summary, error)
	RoundStatuses(ctx context.Context) ([]model.RoundStatus, error)
	Round(ctx context.Context, roundID uint64) (model.RoundInfo, error)
	Candidates(ctx context.Context, roundID uint64) ([]model.Candidate, error)
	Winners(ctx context.Context, roundID uint64) ([]model.Candidate, error)
	RoundHistory(ctx context.Context, roundID uint64) ([]*model.LedgerEvent, error)
}

// Resolver GraphQL解析器
type Resolver struct {
	api LedgerAPI
}

// NewResolver 创建新的解析器
func NewResolver(api LedgerAPI) *Resolver {
	return &Resolver{api: api}
}

type roundArgs struct {
	RoundID graphql.ID
}

func (r *Resolver) LedgerSummary(ctx context.Context) (*SummaryResolver, error) {
	summary, err := r.api.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return &SummaryResolver{summary: summary}, nil
}

func (r *Resolver) RoundStatuses(ctx context.Context) ([]*RoundStatusResolver, error) {
	statuses, err := r.api.RoundStatuses(ctx)
	if err != nil {
		return nil, err
	}
	resolvers := make([]*RoundStatusResolver, len(statuses))
	for i, status := range statuses {
		resolvers[i] = &RoundStatusResolver{status: status}
	}
	return resolvers, nil
}

func (r *Resolver) Round(ctx context.Context, args struct{ ID graphql.ID }) (*RoundResolver, error) {
	roundID, err := parseRoundID(args.ID)
	if err != nil {
		return nil, err
	}
	info, err := r.api.Round(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return &RoundResolver{info: info}, nil
}

func (r *Resolver) Candidates(ctx context.Context, args roundArgs) ([]*CandidateResolver, error) {
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return nil, err
	}
	candidates, err := r.api.Candidates(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return candidateResolvers(candidates), nil
}

func (r *Resolver) Winners(ctx context.Context, args roundArgs) ([]*CandidateResolver, error) {
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return nil, err
	}
	winners, err := r.api.Winners(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return candidateResolvers(winners), nil
}

func (r *Resolver) Participation(ctx context.Context, args struct {
	RoundID graphql.ID
	Address string
}) (bool, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return false, err
	}
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return false, err
	}
	address, err := model.ParseAddress(args.Address)
	if err != nil {
		return false, err
	}
	return r.api.CheckParticipation(ctx, caller, roundID, address)
}

func (r *Resolver) RoundHistory(ctx context.Context, args roundArgs) ([]*LedgerEventResolver, error) {
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return nil, err
	}
	events, err := r.api.RoundHistory(ctx, roundID)
	if err != nil {
		return nil, err
	}
	resolvers := make([]*LedgerEventResolver, len(events))
	for i, event := range events {
		resolvers[i] = &LedgerEventResolver{event: event}
	}
	return resolvers, nil
}

func (r *Resolver) Fee() string {
	return r.api.Fee().String()
}

func (r *Resolver) Owner() string {
	return r.api.Owner().String()
}

// OpenRound 创建投票轮次
func (r *Resolver) OpenRound(ctx context.Context, args struct {
	Addresses    []string
	Names        []string
	LockSelector int32
}) (graphql.ID, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return "", err
	}
	if args.LockSelector < 0 || args.LockSelector > 255 {
		return "", fmt.Errorf("无效的 lockSelector: %d", args.LockSelector)
	}
	addresses := make([]model.Address, len(args.Addresses))
	for i, s := range args.Addresses {
		if addresses[i], err = model.ParseAddress(s); err != nil {
			return "", err
		}
	}

	roundID, err := r.api.OpenRound(ctx, caller, addresses, args.Names, uint8(args.LockSelector))
	if err != nil {
		return "", err
	}
	return formatRoundID(roundID), nil
}

// CastVote 投票
func (r *Resolver) CastVote(ctx context.Context, args struct {
	RoundID     graphql.ID
	CandidateID int32
	Value       string
}) (bool, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return false, err
	}
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return false, err
	}
	value, err := model.ParseAmount(args.Value)
	if err != nil {
		return false, err
	}
	// 负数候选人ID一定不存在，交给账本按顺序校验
	candidateID := uint32(0)
	if args.CandidateID > 0 {
		candidateID = uint32(args.CandidateID)
	}

	if err := r.api.CastVote(ctx, caller, roundID, candidateID, value); err != nil {
		return false, err
	}
	return true, nil
}

// CloseRound 关闭轮次
func (r *Resolver) CloseRound(ctx context.Context, args roundArgs) (*SettlementResolver, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	roundID, err := parseRoundID(args.RoundID)
	if err != nil {
		return nil, err
	}
	settlement, err := r.api.CloseRound(ctx, caller, roundID)
	if err != nil {
		return nil, err
	}
	return &SettlementResolver{settlement: *settlement}, nil
}

// WithdrawCommission 提取佣金
func (r *Resolver) WithdrawCommission(ctx context.Context) (*TransferResolver, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	transfer, err := r.api.WithdrawCommission(ctx, caller)
	if err != nil {
		return nil, err
	}
	return &TransferResolver{transfer: transfer}, nil
}

func parseRoundID(id graphql.ID) (uint64, error) {
	v, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的轮次ID: %q", id)
	}
	return v, nil
}

func formatRoundID(id uint64) graphql.ID {
	return graphql.ID(strconv.FormatUint(id, 10))
}
