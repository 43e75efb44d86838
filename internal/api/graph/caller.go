package graph

import (
	"context"
	"errors"

	"github.com/lvdashuaibi/voteledger/internal/model"
)

// CallerHeader 调用方地址由外部网关认证后写入
const CallerHeader = "X-Caller-Address"

var errNoCaller = errors.New("缺少调用方地址，请设置 " + CallerHeader + " 请求头")

type callerKey struct{}

// WithCaller 把调用方地址放入上下文
func WithCaller(ctx context.Context, caller model.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom 取出调用方地址
func CallerFrom(ctx context.Context) (model.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(model.Address)
	return caller, ok && caller != ""
}

func requireCaller(ctx context.Context) (model.Address, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return "", errNoCaller
	}
	return caller, nil
}
