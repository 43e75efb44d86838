package model

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address 账户地址，0x 前缀的 20 字节十六进制，统一小写
type Address string

// ParseAddress 解析并规范化地址
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", fmt.Errorf("无效的地址: %q", s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("无效的地址: %q", s)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustParseAddress 解析地址，失败时 panic，仅用于常量和测试
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	return string(a)
}

// Amount 金额，单位 gwei
type Amount uint64

// ParseAmount 解析十进制金额字符串
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的金额: %q", s)
	}
	return Amount(v), nil
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}
