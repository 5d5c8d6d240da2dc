// Package xconf 提供客户端配置的加载、解析和热重载，基于 koanf 实现。
//
// # 设计理念
//
// xconf 定位为最小化配置加载器，负责文件/字节数据的加载、反序列化和热重载，
// 并在其上提供类型化的客户端参数层（Settings）：
// 内置默认值 → 配置文件的 client 段 → 加密存储中的覆盖项，按优先级叠加。
//
// xconf 采用与 FinKit 其他基础包相同的设计模式：
//   - 工厂函数：New, NewFromBytes
//   - Client() 暴露底层 koanf 实例
//   - 增值功能：并发安全的 Reload、类型安全的 Unmarshal
//
// # 支持的格式
//
//   - YAML（默认，推荐）：.yaml, .yml
//   - JSON：.json
//
// # 并发安全
//
// koanf 实例指针由 sync.RWMutex 保护：
//   - Reload() 先在锁外解析新配置，成功后在写锁内替换实例，
//     解析失败时旧配置保持不变
//   - Client() 和 Unmarshal() 在读锁内取得当前实例
//
// Client() 返回的指针在 Reload() 后仍然有效，但指向旧配置（快照语义）。
// 推荐用法：每次需要时调用 Client()，不要长期缓存返回的指针。
//
// # Unmarshal
//
// Unmarshal 使用 mapstructure 进行反序列化，默认允许弱类型转换
// （例如字符串 "2s" 可自动转为 time.Duration）。
// 取值范围的校验由 Settings.Validate 负责。
//
// # 配置监视
//
// 支持文件变更监视和自动重载（基于 fsnotify）。
// 特性：监视目录、内置防抖、并发安全、支持 vim/emacs 原子写入。
// 从 bytes 创建的 Config 不支持监视，Watch 返回 ErrNotFromFile。
// Stop() 取消待触发的防抖定时器并释放 fsnotify 资源，可重复调用。
package xconf
