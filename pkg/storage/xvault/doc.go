// Package xvault 提供加密的键值持久化存储。
//
// # 设计理念
//
// xvault 面向客户端本地的敏感小数据：会话 Token、证书 Pin、配置覆盖。
// 数据量小（KB 级），因此采用整体加密的单文档模型而非逐条加密：
//   - 磁盘格式：header(magic + salt + nonce) + XChaCha20-Poly1305 密文
//   - 密钥派生：HKDF-SHA256(secret, salt)，salt 随文件生成并持久化
//   - 写入：先写临时文件再原子 rename，崩溃时不会留下半写状态
//
// # 实现
//
//   - FileStore：加密文件存储，冷加载使用 singleflight 去重
//   - MemoryStore：内存存储，用于测试和无持久化场景
//
// 所有实现都是并发安全的。键按 namespace/name 约定组织
// （如 "session/current"、"pin/media.example.com"），
// Keys 支持按前缀枚举。
//
// # 安全性
//
// Token 等敏感值只以密文落盘；xvault 自身不记录任何值内容的日志。
// secret 由调用方提供（如系统 keyring 派生的设备密钥），
// xvault 不负责 secret 的保管。
package xvault
