// votedemo 在进程内重放一组完整的投票流程：创建两个轮次、投票、关闭并提取佣金
package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/lvdashuaibi/voteledger/internal/bank"
	"github.com/lvdashuaibi/voteledger/internal/ledger"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

// 开发网络的默认账户，每个账户预存 10000 ETH
var (
	owner    = model.MustParseAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	contract = model.MustParseAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	voters   = []model.Address{
		model.MustParseAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		model.MustParseAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"),
		model.MustParseAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"),
	}
	initialDeposit model.Amount = 10_000 * gweiPerEther
)

const gweiPerEther = 1_000_000_000

type roster struct {
	addresses []model.Address
	names     []string
}

var rosters = []roster{
	{
		addresses: []model.Address{
			model.MustParseAddress("0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199"),
			model.MustParseAddress("0xdd2fd4581271e230360230f9337d5c0430bf44c0"),
			model.MustParseAddress("0xbda5747bfd65f08deb54cb465eb87d40e51b197e"),
		},
		names: []string{"David", "Alice", "Max"},
	},
	{
		addresses: []model.Address{
			model.MustParseAddress("0x2546bcd3c84621e976d8185a91a922ae77ecec30"),
			model.MustParseAddress("0xcd3b766ccdd6ae721141f452c550ca635964ce71"),
			model.MustParseAddress("0xdf3e18d64bc6a983f673ab319ccae4f1a57c7097"),
			model.MustParseAddress("0x1cbd3b2770909d4e10f157cabc84c7264073c9ec"),
		},
		names: []string{"Mike", "Rose", "John", "Natali"},
	},
}

// 每个轮次中第 i 个投票者选择的候选人
var ballots = [][]uint32{
	{2, 3, 3},
	{1, 4, 1},
}

func main() {
	if _, _, err := run(context.Background()); err != nil {
		pterm.Error.Println(err)
	}
}

// run 重放完整流程，返回账户簿和账本供检查
func run(ctx context.Context) (*bank.Book, *ledger.Ledger, error) {
	book := bank.NewBook()
	for _, v := range voters {
		book.Deposit(v, initialDeposit)
	}

	l, err := ledger.New(ledger.Config{Owner: owner, Address: contract}, ledger.WithSettler(book))
	if err != nil {
		return nil, nil, err
	}

	pterm.DefaultSection.Println("创建投票")
	for _, r := range rosters {
		id, err := l.OpenRound(ctx, owner, r.addresses, r.names, ledger.LockImmediate)
		if err != nil {
			return nil, nil, err
		}
		pterm.Info.Printfln("已创建第 %d 轮投票，共 %d 名候选人", id, len(r.addresses))
		if err := printCandidates(ctx, l, id); err != nil {
			return nil, nil, err
		}
	}

	pterm.DefaultSection.Println("投票")
	for i, choices := range ballots {
		roundID := uint64(i + 1)
		candidates, err := l.Candidates(ctx, roundID)
		if err != nil {
			return nil, nil, err
		}
		for j, candidateID := range choices {
			if err := l.CastVote(ctx, voters[j], roundID, candidateID, l.Fee()); err != nil {
				return nil, nil, err
			}
			pterm.Info.Printfln("投票者 %d 在第 %d 轮投给了 %s，余额 %s",
				j+1, roundID, candidates[candidateID-1].Name, formatEther(book.Balance(voters[j])))
		}
	}
	pterm.Info.Printfln("合约余额 %s", formatEther(book.Balance(contract)))

	pterm.DefaultSection.Println("关闭投票")
	for i := range ballots {
		settlement, err := l.CloseRound(ctx, voters[0], uint64(i+1))
		if err != nil {
			return nil, nil, err
		}
		pterm.Success.Printfln("第 %d 轮已关闭，奖池 %s，佣金 %s，每位获胜者获得 %s",
			settlement.RoundID, formatEther(settlement.Pot), formatEther(settlement.Commission), formatEther(settlement.Share))
		for _, w := range settlement.Winners {
			pterm.Printfln("   获胜者 %s，票数 %d，余额 %s", pterm.LightCyan(w.Name), w.VoteCount, formatEther(book.Balance(w.Address)))
		}
	}

	if err := printStatuses(ctx, l); err != nil {
		return nil, nil, err
	}

	pterm.DefaultSection.Println("提取佣金")
	transfer, err := l.WithdrawCommission(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	pterm.Success.Printfln("所有者提取佣金 %s", formatEther(transfer.Amount))

	summary, err := l.Summary(ctx)
	if err != nil {
		return nil, nil, err
	}
	pterm.Info.Printfln("合约余额 %s，应付佣金 %s，所有者余额 %s",
		formatEther(summary.Balance), formatEther(summary.CommissionOwed), formatEther(book.Balance(owner)))

	if err := printBalances(book); err != nil {
		return nil, nil, err
	}
	return book, l, nil
}

func printCandidates(ctx context.Context, l *ledger.Ledger, roundID uint64) error {
	candidates, err := l.Candidates(ctx, roundID)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"ID", "名字", "地址"}}
	for _, c := range candidates {
		data = append(data, []string{fmt.Sprint(c.ID), c.Name, c.Address.String()})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printStatuses(ctx context.Context, l *ledger.Ledger) error {
	statuses, err := l.RoundStatuses(ctx)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"轮次", "总票数", "状态", "关闭时间"}}
	for _, s := range statuses {
		state, closedAt := pterm.LightGreen("进行中"), "-"
		if s.Closed() {
			state, closedAt = pterm.LightRed("已关闭"), humanize.Time(s.ClosedAt)
		}
		data = append(data, []string{fmt.Sprint(s.ID), humanize.Comma(int64(s.TotalVotes)), state, closedAt})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printBalances(book *bank.Book) error {
	pterm.DefaultSection.Println("账户余额")
	data := pterm.TableData{{"地址", "余额 (gwei)", "余额 (ETH)"}}
	for _, addr := range book.Addresses() {
		balance := book.Balance(addr)
		data = append(data, []string{addr.String(), humanize.Comma(int64(balance)), formatEther(balance)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatEther(a model.Amount) string {
	return humanize.CommafWithDigits(float64(a)/gweiPerEther, 4) + " ETH"
}
