// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xfile: 文件落盘工具，目录创建、原子写入
//   - xkeylock: 基于 key 的进程内互斥锁，支持 context 超时和非阻塞获取
//   - xnet: IP 地址工具库，基于 net/netip + go4.org/netipx 的增量函数（格式化、解析、本地网段判定）
//
// 设计原则：
//   - 提供常用的文件和网络判定封装
//   - 跨平台兼容
package util
