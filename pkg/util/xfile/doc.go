// Package xfile 提供本地文件落盘的辅助函数。
//
// FinKit 的加密保险库与日志都写在用户目录下，本包统一两件事：
// 确保父目录存在（权限 0750），以及"临时文件 + rename"的原子写入，
// 保证进程崩溃时磁盘上只会留下完整的旧文件。
package xfile
