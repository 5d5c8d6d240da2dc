// Package xdiscover 把用户输入的服务器地址解析为可达的基础 URL。
//
// # 流程
//
//  1. 候选扩展：把原始地址按 scheme × 端口 × 路径展开为有序候选列表，
//     HTTPS 和媒体服务器惯用端口（8920/8096）优先；
//     明文 HTTP 候选只为本地可信网段的主机生成（见 xnet）
//  2. 分批并发探测：每批最多 K 个候选（默认 4），每个探测受独立超时
//     约束（计量网络下超时按倍数放大）
//  3. 首个返回有效"服务器标识"响应的候选胜出，同批其余探测被
//     协作式取消；整批失败则推进到下一批
//  4. 所有候选耗尽 → ErrNoReachableEndpoint（附带逐候选失败明细）
//
// # 标识端点
//
// 探测请求 GET <candidate>/System/Info/Public，响应须为 JSON 且
// 包含非空 Id 字段，否则视为无效（候选主机不是预期的服务器类型）。
//
// # 超时
//
// 每个探测的超时独立于正常请求超时和认证刷新超时，互不共享预算。
package xdiscover
