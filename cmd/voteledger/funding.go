package main

import (
	"fmt"
	"strings"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

type funding struct {
	address model.Address
	amount  model.Amount
}

// parseFunding 解析 0xaddr=gwei,0xaddr=gwei
func parseFunding(s string) ([]funding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []funding
	for _, part := range strings.Split(s, ",") {
		addr, amount, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("充值参数格式错误: %q", part)
		}
		a, err := model.ParseAddress(addr)
		if err != nil {
			return nil, err
		}
		v, err := model.ParseAmount(strings.TrimSpace(amount))
		if err != nil {
			return nil, err
		}
		out = append(out, funding{address: a, amount: v})
	}
	return out, nil
}
