package ledger

import "errors"

var (
	// ErrUnauthorized 调用方不是所有者
	ErrUnauthorized = errors.New("Ownable: caller is not the owner")
	// ErrArgumentMismatch 候选人地址和名字数量不一致
	ErrArgumentMismatch = errors.New("The number of addresses and names doesn't match!")
	// ErrEmptyRoster 候选人列表为空
	ErrEmptyRoster = errors.New("A vote needs at least one candidate!")
	// ErrNoSuchRound 轮次不存在
	ErrNoSuchRound = errors.New("No vote with this id exists!")
	// ErrRoundClosed 轮次已关闭
	ErrRoundClosed = errors.New("Voting is closed!")
	// ErrAlreadyVoted 地址已在该轮次投过票
	ErrAlreadyVoted = errors.New("You have already participated in this vote!")
	// ErrNoSuchCandidate 候选人不存在
	ErrNoSuchCandidate = errors.New("No candidate with this id exists!")
	// ErrWrongFee 附带金额不等于投票费用
	ErrWrongFee = errors.New("To participate in the voting, you need to contribute the exact fee!")
	// ErrLockNotElapsed 锁定期未结束，CloseRound 返回时附带最早可关闭时间
	ErrLockNotElapsed = errors.New("Voting must last at least the lock period!")
	// ErrNoRoundsYet 还没有创建任何轮次
	ErrNoRoundsYet = errors.New("No created vote!")
	// ErrRoundStillOpen 轮次未关闭，获胜者未定
	ErrRoundStillOpen = errors.New("Winner unknown, voting has not closed yet!")

	// ErrReentrantCall 资金划转过程中回调账本
	ErrReentrantCall = errors.New("reentrant call during settlement")
	// ErrSettlementFailed 资金划转通道拒绝了整批划转
	ErrSettlementFailed = errors.New("settlement rejected")
	// ErrCorruptState 快照不满足账本不变量
	ErrCorruptState = errors.New("corrupt ledger state")
)
