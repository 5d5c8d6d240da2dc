package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSettingsFile 写入一份只含 client 段的配置固件。
func writeSettingsFile(t *testing.T, maxAttempts int) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := fmt.Sprintf("client:\n  max_attempts: %d\n", maxAttempts)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// Watch 单元测试
// =============================================================================

func TestWatch_Success(t *testing.T) {
	configPath := writeSettingsFile(t, 3)

	cfg, err := New(configPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Client().Int("client.max_attempts"))

	var mu sync.Mutex
	var reloadCount int
	var lastErr error

	w, err := Watch(cfg, func(c Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloadCount++
		lastErr = err
	})
	require.NoError(t, err)

	w.StartAsync()
	defer func() { _ = w.Stop() }()

	// 等待监视器启动
	time.Sleep(50 * time.Millisecond)

	// 修改配置文件
	err = os.WriteFile(configPath, []byte("client:\n  max_attempts: 7\n"), 0600)
	require.NoError(t, err)

	// 等待重载（防抖 100ms + 一些延迟）
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, reloadCount, 1, "callback should be called at least once")
	assert.NoError(t, lastErr, "reload should not error")
	mu.Unlock()

	// 验证参数已更新
	assert.Equal(t, 7, cfg.Client().Int("client.max_attempts"))
}

func TestWatch_FromBytes_Error(t *testing.T) {
	// 从 bytes 创建的配置不支持监视
	cfg, err := NewFromBytes([]byte("client:\n  max_attempts: 3\n"), FormatYAML)
	require.NoError(t, err)

	_, err = Watch(cfg, func(c Config, err error) {})
	assert.ErrorIs(t, err, ErrNotFromFile)
}

func TestWatch_NilCallback(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	_, err = Watch(cfg, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
}

func TestWatch_InvalidDebounce(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	// 零值防抖
	_, err = Watch(cfg, func(c Config, err error) {}, WithDebounce(0))
	assert.ErrorIs(t, err, ErrInvalidDebounce)

	// 负值防抖
	_, err = Watch(cfg, func(c Config, err error) {}, WithDebounce(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidDebounce)
}

func TestWatch_EmptyPath(t *testing.T) {
	// 手工构造一个 path 为空的 koanfConfig
	cfg := &koanfConfig{path: ""}
	_, err := Watch(cfg, func(c Config, err error) {})
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestWatch_UnsupportedConfigType(t *testing.T) {
	// 传入 nil 接口
	_, err := Watch(nil, func(c Config, err error) {})
	assert.ErrorIs(t, err, ErrWatchFailed)
}

func TestWatch_Stop(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	w, err := Watch(cfg, func(c Config, err error) {})
	require.NoError(t, err)

	w.StartAsync()

	err = w.Stop()
	assert.NoError(t, err)

	// 再次停止应该也是成功的（幂等）
	err = w.Stop()
	assert.NoError(t, err)
}

func TestWatch_WithDebounce(t *testing.T) {
	configPath := writeSettingsFile(t, 3)

	cfg, err := New(configPath)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloadCount int

	// 使用较短的防抖时间
	w, err := Watch(cfg, func(c Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloadCount++
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	w.StartAsync()
	defer func() { _ = w.Stop() }()

	time.Sleep(30 * time.Millisecond)

	// 快速连续修改多次
	for i := range 5 {
		content := fmt.Sprintf("client:\n  max_attempts: %d\n", i+1)
		err = os.WriteFile(configPath, []byte(content), 0600)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	// 等待防抖完成
	time.Sleep(150 * time.Millisecond)

	// 由于防抖，回调次数应该少于修改次数
	mu.Lock()
	count := reloadCount
	mu.Unlock()
	assert.Less(t, count, 5, "debounce should reduce callback count")
}

func TestWatchConfig_Interface(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	// 验证 koanfConfig 实现了 WatchConfig 接口
	watchCfg, ok := cfg.(WatchConfig)
	require.True(t, ok, "koanfConfig should implement WatchConfig")

	// 通过接口创建监视器
	w, err := watchCfg.Watch(func(c Config, err error) {})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
}

// =============================================================================
// 并发与生命周期测试
// =============================================================================

// TestWatcher_StopCancelsTimer 验证 Stop() 取消待触发的 debounce 定时器。
func TestWatcher_StopCancelsTimer(t *testing.T) {
	configPath := writeSettingsFile(t, 3)

	cfg, err := New(configPath)
	require.NoError(t, err)

	var mu sync.Mutex
	callbackCalledAfterStop := false

	// 使用较长的防抖时间，以便有足够时间在回调前调用 Stop
	w, err := Watch(cfg, func(c Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		callbackCalledAfterStop = true
	}, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)

	w.StartAsync()
	time.Sleep(30 * time.Millisecond)

	// 触发文件变更
	err = os.WriteFile(configPath, []byte("client:\n  max_attempts: 9\n"), 0600)
	require.NoError(t, err)

	// 等待事件被检测到，但在防抖回调触发前
	time.Sleep(50 * time.Millisecond)

	err = w.Stop()
	require.NoError(t, err)

	// 等待足够长的时间，确保如果定时器没被取消，回调会被执行
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	called := callbackCalledAfterStop
	mu.Unlock()
	assert.False(t, called, "Stop() 后不应触发回调")
}

// TestWatcher_StartAsyncStopRace 验证 StartAsync 后立即 Stop 没有竞态。
func TestWatcher_StartAsyncStopRace(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	// 多次重复以增加暴露竞态的机会
	for range 100 {
		w, err := Watch(cfg, func(c Config, err error) {})
		require.NoError(t, err)

		w.StartAsync()
		err = w.Stop()
		assert.NoError(t, err, "Stop() 应该正常工作，即使在 StartAsync() 后立即调用")
	}
}

// TestWatcher_RenameEvent 验证 Rename 事件能触发配置重载。
// vim/emacs 原子写入模式使用 Rename 而非 Write。
func TestWatcher_RenameEvent(t *testing.T) {
	configPath := writeSettingsFile(t, 3)

	cfg, err := New(configPath)
	require.NoError(t, err)

	var mu sync.Mutex
	var reloadCount int

	w, err := Watch(cfg, func(c Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		reloadCount++
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	w.StartAsync()
	defer func() { _ = w.Stop() }()

	time.Sleep(30 * time.Millisecond)

	// 模拟原子写入：先写临时文件，然后 rename
	tmpFile := configPath + ".tmp"
	err = os.WriteFile(tmpFile, []byte("client:\n  max_attempts: 8\n"), 0600)
	require.NoError(t, err)

	err = os.Rename(tmpFile, configPath)
	require.NoError(t, err)

	// 等待重载
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	count := reloadCount
	mu.Unlock()
	assert.GreaterOrEqual(t, count, 1, "Rename 事件应触发回调")

	assert.Equal(t, 8, cfg.Client().Int("client.max_attempts"))
}

// TestWatcher_StartBlocking 验证 Start() 阻塞到 Stop() 为止。
func TestWatcher_StartBlocking(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	w, err := Watch(cfg, func(c Config, err error) {})
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		w.Start()
		close(done)
	}()

	<-started
	time.Sleep(20 * time.Millisecond)

	// Stop 应解除 Start 的阻塞
	err = w.Stop()
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() 未在 Stop() 后返回")
	}
}

// TestWatcher_DoubleStartAsync 验证重复调用 StartAsync 只启动一次。
func TestWatcher_DoubleStartAsync(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	w, err := Watch(cfg, func(c Config, err error) {})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	w.StartAsync()
	// 第二次调用应直接返回（覆盖 running=true 分支）
	w.StartAsync()
}

// TestWatcher_DoubleStart 验证重复调用 Start 只启动一次。
func TestWatcher_DoubleStart(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	w, err := Watch(cfg, func(c Config, err error) {})
	require.NoError(t, err)

	// 先用 StartAsync 设置 running=true
	w.StartAsync()
	defer func() { _ = w.Stop() }()

	// 第二次调用 Start 应立即返回（覆盖 running=true 分支）
	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() 应立即返回（已在运行）")
	}
}

// TestWatcher_CallbackPanic 验证用户回调 panic 不崩溃进程。
func TestWatcher_CallbackPanic(t *testing.T) {
	configPath := writeSettingsFile(t, 3)

	cfg, err := New(configPath)
	require.NoError(t, err)

	callbackCalled := make(chan struct{}, 1)

	// 回调故意 panic
	w, err := Watch(cfg, func(c Config, err error) {
		select {
		case callbackCalled <- struct{}{}:
		default:
		}
		panic("intentional panic in callback")
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	w.StartAsync()
	defer func() { _ = w.Stop() }()

	time.Sleep(30 * time.Millisecond)

	// 触发文件变更
	err = os.WriteFile(configPath, []byte("client:\n  max_attempts: 4\n"), 0600)
	require.NoError(t, err)

	select {
	case <-callbackCalled:
		// 回调被调用且 panic 被吸收
	case <-time.After(time.Second):
		t.Fatal("回调未被调用")
	}

	// 进程没有崩溃即验证通过
	time.Sleep(50 * time.Millisecond)
}

// TestWatcher_StopWithoutStart 验证未启动的 Watcher 调用 Stop 也能释放 fsnotify 资源。
func TestWatcher_StopWithoutStart(t *testing.T) {
	cfg, err := New(writeSettingsFile(t, 3))
	require.NoError(t, err)

	w, err := Watch(cfg, func(c Config, err error) {})
	require.NoError(t, err)

	// 不调用 Start/StartAsync，直接 Stop 应释放 fsnotify 资源
	err = w.Stop()
	assert.NoError(t, err)

	// 再次 Stop 应幂等返回 nil
	err = w.Stop()
	assert.NoError(t, err)
}

// TestWatcher_HandleError 验证 fsnotify 错误通过回调传递。
func TestWatcher_HandleError(t *testing.T) {
	errCh := make(chan error, 1)
	w := &Watcher{
		cfg: &koanfConfig{},
		callback: func(c Config, err error) {
			errCh <- err
		},
	}

	testErr := fmt.Errorf("test fsnotify error")
	w.handleError(testErr)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrWatchFailed)
		assert.ErrorIs(t, err, testErr)
	case <-time.After(time.Second):
		t.Fatal("handleError 回调未被调用")
	}
}

// TestWatcher_HandleErrorNilCallback 验证无回调时 handleError 不 panic。
func TestWatcher_HandleErrorNilCallback(t *testing.T) {
	w := &Watcher{
		cfg:      &koanfConfig{},
		callback: nil,
	}

	assert.NotPanics(t, func() {
		w.handleError(fmt.Errorf("test error"))
	})
}
