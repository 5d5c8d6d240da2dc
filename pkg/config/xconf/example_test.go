package xconf_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/omeyang/finkit/pkg/config/xconf"
)

// ExampleNew 演示从文件加载客户端配置。
func ExampleNew() {
	tmpDir, err := os.MkdirTemp("", "xconf-example")
	if err != nil {
		fmt.Printf("failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	configPath := filepath.Join(tmpDir, "finkit.yaml")
	configContent := `
server:
  address: media.example.com
client:
  max_attempts: 5
  batch_size: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		fmt.Printf("failed to write config file: %v\n", err)
		return
	}

	cfg, err := xconf.New(configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	fmt.Printf("server.address: %s\n", cfg.Client().String("server.address"))
	fmt.Printf("client.max_attempts: %d\n", cfg.Client().Int("client.max_attempts"))

	// Output:
	// server.address: media.example.com
	// client.max_attempts: 5
}

// ExampleLoadSettings 演示类型安全的参数加载，未给出的字段保持默认。
func ExampleLoadSettings() {
	cfg, err := xconf.NewFromBytes([]byte(`
client:
  max_attempts: 5
  probe_timeout: 1s
`), xconf.FormatYAML)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return
	}

	settings, err := xconf.LoadSettings(cfg)
	if err != nil {
		fmt.Printf("failed to load settings: %v\n", err)
		return
	}

	fmt.Printf("max_attempts: %d\n", settings.MaxAttempts)
	fmt.Printf("probe_timeout: %s\n", settings.ProbeTimeout)
	fmt.Printf("batch_size: %d\n", settings.BatchSize)

	// Output:
	// max_attempts: 5
	// probe_timeout: 1s
	// batch_size: 4
}

// ExampleConfig_Reload 演示配置热重载。
func ExampleConfig_Reload() {
	tmpDir, err := os.MkdirTemp("", "xconf-reload")
	if err != nil {
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	configPath := filepath.Join(tmpDir, "finkit.yaml")
	if err := os.WriteFile(configPath, []byte("client:\n  max_attempts: 3\n"), 0600); err != nil {
		return
	}

	cfg, err := xconf.New(configPath)
	if err != nil {
		return
	}
	fmt.Printf("before: %d\n", cfg.Client().Int("client.max_attempts"))

	if err := os.WriteFile(configPath, []byte("client:\n  max_attempts: 6\n"), 0600); err != nil {
		return
	}
	if err := cfg.Reload(); err != nil {
		return
	}
	fmt.Printf("after: %d\n", cfg.Client().Int("client.max_attempts"))

	// Output:
	// before: 3
	// after: 6
}
