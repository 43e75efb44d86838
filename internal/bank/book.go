// Package bank 提供内存中的账户簿，作为账本的资金划转通道
package bank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

var ErrInsufficientFunds = errors.New("余额不足")

// Book 内存账户簿，Settle 对一批划转保证全部成功或全部失败
type Book struct {
	mu       sync.Mutex
	accounts map[model.Address]model.Amount
	history  []model.Transfer
}

func NewBook() *Book {
	return &Book{accounts: make(map[model.Address]model.Amount)}
}

// Deposit 向账户充值
func (b *Book) Deposit(addr model.Address, amount model.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[addr] += amount
}

// Balance 查询账户余额
func (b *Book) Balance(addr model.Address) model.Amount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[addr]
}

// Addresses 返回所有账户地址，按字典序
func (b *Book) Addresses() []model.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	addrs := make([]model.Address, 0, len(b.accounts))
	for addr := range b.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// History 已完成的划转记录
func (b *Book) History() []model.Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Transfer(nil), b.history...)
}

// Settle 按顺序执行一批划转，任一笔余额不足则整批拒绝
func (b *Book) Settle(_ context.Context, transfers []model.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged, err := Stage(func(addr model.Address) model.Amount { return b.accounts[addr] }, transfers)
	if err != nil {
		return err
	}
	for addr, amount := range staged {
		b.accounts[addr] = amount
	}
	b.history = append(b.history, transfers...)
	return nil
}

// Stage 在 current 给出的余额上依次应用划转，返回所有受影响账户的新余额
func Stage(current func(model.Address) model.Amount, transfers []model.Transfer) (map[model.Address]model.Amount, error) {
	staged := make(map[model.Address]model.Amount)
	balance := func(addr model.Address) model.Amount {
		if v, ok := staged[addr]; ok {
			return v
		}
		return current(addr)
	}

	for _, t := range transfers {
		from := balance(t.From)
		if from < t.Amount {
			return nil, fmt.Errorf("%w: %s 需要 %s，当前 %s", ErrInsufficientFunds, t.From, t.Amount, from)
		}
		staged[t.From] = from - t.Amount
		staged[t.To] = balance(t.To) + t.Amount
	}
	return staged, nil
}

// Participants 划转涉及的所有地址，按字典序
func Participants(transfers []model.Transfer) []model.Address {
	seen := make(map[model.Address]struct{}, len(transfers)*2)
	for _, t := range transfers {
		seen[t.From] = struct{}{}
		seen[t.To] = struct{}{}
	}
	addrs := make([]model.Address, 0, len(seen))
	for addr := range seen {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
