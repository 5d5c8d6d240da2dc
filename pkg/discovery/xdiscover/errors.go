package xdiscover

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAddress 原始地址无法解析出任何候选。
	ErrInvalidAddress = errors.New("xdiscover: invalid server address")

	// ErrNoReachableEndpoint 所有候选均探测失败。
	ErrNoReachableEndpoint = errors.New("xdiscover: no reachable endpoint")

	// ErrNilContext 上下文为空。
	ErrNilContext = errors.New("xdiscover: nil context")
)

// ProbeFailure 单个候选的探测失败记录。
type ProbeFailure struct {
	URL string // 候选基础 URL
	Err error  // 失败原因
}

// DiscoveryError 聚合全部候选的失败明细，Unwrap 到 ErrNoReachableEndpoint
// 以便调用方用 errors.Is 判断。
type DiscoveryError struct {
	Address  string
	Failures []ProbeFailure
}

func (e *DiscoveryError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "xdiscover: no reachable endpoint for %q (%d candidates tried)", e.Address, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&sb, "\n  %s: %v", f.URL, f.Err)
	}
	return sb.String()
}

func (e *DiscoveryError) Unwrap() error { return ErrNoReachableEndpoint }
