// Package xclient 是面向单个媒体服务器的认证 HTTP 客户端层。
//
// Client 把下层组件编排成一条显式的请求管道，Execute 依次经过：
//
//   - 认证段：附加当前 Token；收到 401 时委托 xsession 单飞刷新，
//     成功后用新 Token 把原请求恰好重试一次，再失败即以 AuthExpired
//     浮出，绝不循环
//   - 重试段：按 xretry 的失败分类与退避策略重试，401/403 永远
//     不经此路径
//   - 熔断段：可选的 gobreaker 熔断，网络级与 5xx 失败计数，
//     打开后快速失败，避免对故障服务器持续施压
//
// 传输层的 TLS 校验经 xpin 的 TOFU 钉扎回调完成，对每次握手生效，
// 与请求级逻辑无关。
//
// ClientCache 以 hash(serverURL, token) 为键缓存传输句柄；Token 更替
// 时按旧 Token 失效对应条目，登出时整体清空。键由 Token 派生，
// 过期条目不可能与新会话混淆。
//
// Token 取值不进入日志与错误信息。
package xclient
