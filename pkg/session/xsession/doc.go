// Package xsession 管理单个媒体服务器的认证会话生命周期。
//
// 一个 Manager 实例对应一个服务器身份，持有当前访问 Token 与刷新
// 状态机（Idle → Refreshing → Idle/Failed），并保证单飞刷新：
// 无论多少调用方并发触发，一个失效周期内只有一次换取 Token 的
// 网络调用到达服务器，所有等待者共享同一结果。
//
// # 状态机
//
//   - Idle：Token 可用，可直接附加到请求
//   - Refreshing：换取调用在途，新调用方挂到同一 PendingRefresh 上
//   - Failed：刷新耗尽或凭据被拒，只有重新登录能复位，不自动恢复
//   - LoggedOut：显式登出后的终态，任何取 Token 的调用快速失败
//
// # 主动刷新
//
// Token 寿命达到可配置比例（默认 0.8）时自动触发一次刷新，走与
// 被动刷新完全相同的单飞路径，让在途请求极少因自然过期撞上 401。
//
// # 安全
//
// Token 取值不进入日志与错误信息。持久化经加密存储（见 xvault）。
package xsession
