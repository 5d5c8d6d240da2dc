// Package xpin 实现 TOFU（Trust-On-First-Use）证书公钥固定。
//
// # 状态机
//
// 每个主机名独立经历两个状态：
//
//	Unknown ──首次成功握手──▶ Pinned ──用户显式撤销──▶ Unknown
//
// 首次成功握手（标准链校验通过后）计算叶子证书公钥的 SHA-256
// 并加密持久化为 Pin；此后每次握手都将服务端出示的证书链的公钥
// 哈希与已存 Pin 精确比对，不匹配即拒绝连接（PinMismatchError），
// 没有任何静默绕过路径。Pin 只能通过显式的用户撤销操作回到
// Unknown，不存在自动轮换。
//
// # 比对范围
//
// 后续握手时 Pin 与链中任意证书（叶子或中间 CA）的公钥哈希比对，
// 因此在固定的中间 CA 下轮换叶子证书不会触发误报。
//
// # 集成方式
//
// TrustStore.TLSConfig(hostname) 返回带 VerifyPeerCertificate 回调的
// *tls.Config，可直接挂到 http.Transport 上；固定校验独立于请求级
// 逻辑，在每次 TLS 握手时生效。
//
// # 并发
//
// Pin 存储只在每个主机名的首次使用时产生写竞争，
// 通过 xkeylock 的按主机名互斥串行化。
package xpin
