package xnet

import (
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// IsPrivate 报告 addr 是否为私有地址（RFC 1918 / ULA）。
// 无效地址返回 false。
func IsPrivate(addr netip.Addr) bool {
	return addr.IsValid() && addr.IsPrivate()
}

// IsLoopback 报告 addr 是否为环回地址。
// 无效地址返回 false。
func IsLoopback(addr netip.Addr) bool {
	return addr.IsValid() && addr.IsLoopback()
}

// trustedLocalSet 覆盖"本地可信"网段：
// 私有网段、环回、链路本地和运营商级 NAT（CGNAT）。
var trustedLocalSet = buildTrustedLocalSet()

func buildTrustedLocalSet() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"100.64.0.0/10",
		"fc00::/7",
		"fe80::/10",
		"::1/128",
	} {
		b.AddPrefix(netip.MustParsePrefix(cidr))
	}
	s, err := b.IPSet()
	if err != nil {
		// 所有前缀都是字面量常量，构建不可能失败
		panic("xnet: build trusted local set: " + err.Error())
	}
	return s
}

// IsTrustedLocal 报告 addr 是否位于本地可信网段。
// 无效地址返回 false。
func IsTrustedLocal(addr netip.Addr) bool {
	return addr.IsValid() && trustedLocalSet.Contains(addr.Unmap())
}

// IsTrustedLocalHost 报告主机名是否可视为本地可信。
//
// 规则：
//   - IP 字面量 → 按 IsTrustedLocal 判断
//   - "localhost" 及 *.local（mDNS）→ 可信
//   - 其他主机名（需要公网 DNS 解析的）→ 不可信
//
// 设计决策: 不在这里做 DNS 解析——发现阶段还没有建立任何信任，
// 按解析结果放宽会把判定权交给不可信的解析器。
func IsTrustedLocalHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return IsTrustedLocal(addr)
}
