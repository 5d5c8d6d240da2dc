// Package xnet 提供地址分类工具。
//
// 主要服务于端点发现：判断一个候选主机是否位于可信的本地网络
// （私有网段、环回、链路本地等），从而决定是否允许生成明文 HTTP
// 候选端点。公网主机永远只走 HTTPS。
//
// 范围集合基于 go4.org/netipx 的 IPSet 构建，一次构建后查询为
// 只读操作，并发安全。
package xnet
