// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xvault: 加密键值存储，XChaCha20-Poly1305 文件后端与内存后端
//
// 设计原则：
//   - 提供统一的接口抽象，支持多种存储后端
//   - 凭据与指纹只经加密后落盘
//   - 写入保持原子性，崩溃不产生半截文件
package storage
