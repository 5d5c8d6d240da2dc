package xdiscover

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/omeyang/finkit/pkg/util/xnet"
)

// Candidate 一个待探测的候选基础 URL。
type Candidate struct {
	URL      string // 规范化的基础 URL，无尾部斜杠
	Priority int    // 越小越优先，同批内无序
}

// 媒体服务器的惯用端口。HTTPS 先试专用端口再试 443，
// HTTP 先试专用端口再试 80。
var (
	httpsPorts = []string{"8920", "443"}
	httpPorts  = []string{"8096", "80"}
)

// Expand 把用户输入的原始地址展开为有序候选列表。
//
// 规则:
//   - 显式 scheme 被尊重，只生成该 scheme 的候选
//   - 无 scheme 时先生成全部 HTTPS 候选，再生成 HTTP 候选
//   - 显式端口被保留，不再叠加惯用端口
//   - 路径前缀保留（反向代理子路径部署），并在其后追加一组
//     去掉路径的兜底候选
//   - 明文 HTTP 候选仅当主机属于本地可信网段，或用户显式写了
//     http:// 才生成
func Expand(raw string) ([]Candidate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidAddress
	}

	explicitScheme := strings.Contains(raw, "://")
	if !explicitScheme {
		// url.Parse 对 "host:8096" 会把 host 当成 scheme，补一个
		// 占位 scheme 保证解析出 Host 字段。
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Hostname() == "" {
		return nil, ErrInvalidAddress
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}

	host := u.Hostname()
	explicitPort := u.Port()
	path := strings.TrimRight(u.Path, "/")

	var schemes []string
	if explicitScheme {
		schemes = []string{u.Scheme}
	} else {
		schemes = []string{"https", "http"}
	}

	paths := []string{path}
	if path != "" {
		paths = append(paths, "")
	}

	var out []Candidate
	prio := 0
	for _, p := range paths {
		for _, scheme := range schemes {
			if scheme == "http" {
				forced := explicitScheme && u.Scheme == "http"
				if !forced && !xnet.IsTrustedLocalHost(host) {
					continue
				}
			}

			ports := candidatePorts(scheme, explicitPort)
			for _, port := range ports {
				out = append(out, Candidate{
					URL:      buildURL(scheme, host, port, p),
					Priority: prio,
				})
				prio++
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: plain http to non-local host %q is not allowed", ErrInvalidAddress, host)
	}
	return out, nil
}

func candidatePorts(scheme, explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if scheme == "https" {
		return httpsPorts
	}
	return httpPorts
}

func buildURL(scheme, host, port, path string) string {
	h := host
	if strings.Contains(host, ":") {
		// IPv6 字面量。
		h = "[" + host + "]"
	}
	defaultPort := (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	if defaultPort {
		sb.WriteString(h)
	} else {
		sb.WriteString(net.JoinHostPort(host, port))
	}
	sb.WriteString(path)
	return sb.String()
}
