package xpin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"time"
)

// VerifyPeerCertificate 返回可挂到 tls.Config.VerifyPeerCertificate 的回调。
//
// 回调在标准链校验之后执行：优先使用校验过的链（verifiedChains），
// 标准校验被跳过时退回到解析原始证书。固定校验失败会使整个握手
// 失败，连接不会建立。
func (ts *TrustStore) VerifyPeerCertificate(hostname string) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		var chain []*x509.Certificate
		if len(verifiedChains) > 0 {
			chain = verifiedChains[0]
		} else {
			chain = make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return fmt.Errorf("xpin: parse peer certificate: %w", err)
				}
				chain = append(chain, cert)
			}
		}
		return ts.Verify(hostname, chain)
	}
}

// TLSConfig 返回带固定校验的 *tls.Config。
// 标准链校验保持启用，固定校验在其之后叠加。
func (ts *TrustStore) TLSConfig(hostname string) *tls.Config {
	return &tls.Config{
		MinVersion:            tls.VersionTLS12,
		VerifyPeerCertificate: ts.VerifyPeerCertificate(hostname),
	}
}

// DialTLSContext 返回按目标主机名做固定校验的 TLS 拨号函数，
// 供同一个传输访问多个主机时挂到 http.Transport.DialTLSContext。
func (ts *TrustStore) DialTLSContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		td := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName:            host,
				MinVersion:            tls.VersionTLS12,
				VerifyPeerCertificate: ts.VerifyPeerCertificate(host),
			},
		}
		return td.DialContext(ctx, network, addr)
	}
}

// Transport 返回对每个 HTTPS 目标做固定校验的 HTTP 传输。
func (ts *TrustStore) Transport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialTLSContext = ts.DialTLSContext(nil)
	return t
}
