package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/finkit/pkg/client/xclient"
	"github.com/omeyang/finkit/pkg/config/xconf"
	"github.com/omeyang/finkit/pkg/discovery/xdiscover"
	"github.com/omeyang/finkit/pkg/observability/xlog"
	"github.com/omeyang/finkit/pkg/resilience/xretry"
	"github.com/omeyang/finkit/pkg/security/xpin"
	"github.com/omeyang/finkit/pkg/session/xsession"
	"github.com/omeyang/finkit/pkg/storage/xvault"
)

// currentServerKey 保险库里记录"当前服务器基础 URL"的键。
// login 写入, get/logout 读取, 使会话跨进程可恢复。
const currentServerKey = "server/current"

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 表示参数错误，run() 映射为退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// isCLIUsageError 判断错误是否来自 cli 框架的参数解析。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "No help topic for")
}

// setupSignalHandler 设置信号处理。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createDiscoverCommand(),
		createLoginCommand(),
		createGetCommand(),
		createPinsCommand(),
		createLogoutCommand(),
	}
}

// cmdEnv 聚合单次命令执行所需的共享资源。
type cmdEnv struct {
	store    xvault.Store
	trust    *xpin.TrustStore
	settings *xconf.Settings
	logger   *xlog.Builder
	cleanup  func() error
}

// newCmdEnv 根据全局标志打开保险库、加载配置。
// 未提供保险库口令时退化为内存存储：指纹与会话仅在本次进程内有效。
func newCmdEnv(cmd *cli.Command) (*cmdEnv, error) {
	env := &cmdEnv{
		settings: xconf.DefaultSettings(),
		cleanup:  func() error { return nil },
	}

	secret := cmd.String("vault-secret")
	if secret != "" {
		store, err := xvault.NewFileStore(cmd.String("vault"), []byte(secret))
		if err != nil {
			return nil, fmt.Errorf("打开保险库失败: %w", err)
		}
		env.store = store
		env.cleanup = store.Close
	} else {
		env.store = xvault.NewMemoryStore()
	}

	if path := cmd.String("config"); path != "" {
		cfg, err := xconf.New(path)
		if err != nil {
			env.close()
			return nil, fmt.Errorf("加载配置失败: %w", err)
		}
		settings, err := xconf.LoadSettings(cfg)
		if err != nil {
			env.close()
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		env.settings = settings
	}
	// 保险库中的运行时覆盖优先于配置文件。
	if err := env.settings.ApplyOverrides(context.Background(), env.store); err != nil {
		env.close()
		return nil, fmt.Errorf("应用配置覆盖失败: %w", err)
	}

	trust, err := xpin.New(env.store)
	if err != nil {
		env.close()
		return nil, fmt.Errorf("初始化信任库失败: %w", err)
	}
	env.trust = trust

	return env, nil
}

func (e *cmdEnv) close() {
	_ = e.cleanup()
}

// buildLogger 按全局 --log-level 构建输出到 stderr 的日志器。
func buildLogger(cmd *cli.Command) (*loggerBundle, error) {
	logger, cleanup, err := xlog.New().
		SetOutput(os.Stderr).
		SetLevelString(cmd.String("log-level")).
		SetFormat("text").
		Build()
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return &loggerBundle{Logger: logger, cleanup: cleanup}, nil
}

type loggerBundle struct {
	Logger  *slog.Logger
	cleanup func() error
}

// buildClient 按配置组装客户端。
func (e *cmdEnv) buildClient(logger *slog.Logger) (*xclient.Client, error) {
	return xclient.New(
		xclient.WithStore(e.store),
		xclient.WithTrustStore(e.trust),
		xclient.WithLogger(logger),
		xclient.WithVersion(Version),
		xclient.WithRequestTimeout(e.settings.RequestTimeout),
		xclient.WithRetryer(xretry.NewRetryer(
			xretry.WithMaxAttempts(e.settings.MaxAttempts),
		)),
		xclient.WithDiscoverer(e.discoverer(logger)),
		xclient.WithSessionOptions(
			xsession.WithLeadFraction(e.settings.RefreshLeadFraction),
			xsession.WithRefreshTimeout(e.settings.RefreshTimeout),
		),
	)
}

// discoverer 构建共享信任库的端点发现器。
func (e *cmdEnv) discoverer(logger *slog.Logger) *xdiscover.Discoverer {
	client := &http.Client{Transport: e.trust.Transport()}
	return xdiscover.NewDiscoverer(
		xdiscover.WithHTTPClient(client),
		xdiscover.WithBatchSize(e.settings.BatchSize),
		xdiscover.WithProbeTimeout(e.settings.ProbeTimeout),
		xdiscover.WithMeteredMultiplier(e.settings.MeteredMultiplier),
		xdiscover.WithLogger(logger),
	)
}

// createDiscoverCommand 创建 discover 命令。
func createDiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "探测服务器地址, 打印可达的基础 URL 与身份信息",
		ArgsUsage: "<地址>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			address := cmd.Args().First()
			if address == "" {
				return &usageError{msg: "缺少服务器地址参数"}
			}

			env, err := newCmdEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			bundle, err := buildLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bundle.cleanup() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			result, err := env.discoverer(bundle.Logger).Discover(ctx, address)
			if err != nil {
				return fmt.Errorf("发现失败: %w", err)
			}

			fmt.Printf("基础 URL:   %s\n", result.BaseURL)
			fmt.Printf("服务器:     %s\n", result.Identity.ServerName)
			fmt.Printf("服务器 ID:  %s\n", result.Identity.ID)
			fmt.Printf("版本:       %s\n", result.Identity.Version)
			fmt.Printf("耗时:       %s\n", result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

// createLoginCommand 创建 login 命令。
func createLoginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "登录服务器并把会话持久化到本地保险库",
		ArgsUsage: "<地址>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "用户名",
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "密码 (建议用环境变量传入)",
				Sources: cli.EnvVars("FINCTL_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			address := cmd.Args().First()
			if address == "" {
				return &usageError{msg: "缺少服务器地址参数"}
			}
			username := cmd.String("user")
			if username == "" {
				return &usageError{msg: "缺少 --user 参数"}
			}
			password := cmd.String("password")
			if password == "" {
				return &usageError{msg: "缺少密码 (--password 或 FINCTL_PASSWORD)"}
			}

			env, err := newCmdEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			bundle, err := buildLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bundle.cleanup() }()

			client, err := env.buildClient(bundle.Logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			session, err := client.Login(ctx, address, username, password)
			if err != nil {
				if errors.Is(err, xclient.ErrInvalidCredentials) {
					fmt.Fprintln(os.Stderr, "登录失败: 用户名或密码错误")
					return &exitError{code: 1}
				}
				return fmt.Errorf("登录失败: %w", err)
			}

			if err := env.store.Set(ctx, currentServerKey, []byte(client.BaseURL())); err != nil {
				return fmt.Errorf("记录当前服务器失败: %w", err)
			}

			fmt.Printf("已登录 %s (用户 %s)\n", session.ServerURL, session.UserID)
			return nil
		},
	}
}

// createGetCommand 创建 get 命令。
func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "以当前会话执行一次 GET 请求并输出响应体",
		ArgsUsage: "<路径>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return &usageError{msg: "缺少请求路径参数"}
			}

			env, err := newCmdEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			bundle, err := buildLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bundle.cleanup() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			client, err := resumeClient(ctx, env, bundle.Logger)
			if err != nil {
				return err
			}

			req, err := client.NewRequest(ctx, "GET", path, nil)
			if err != nil {
				return fmt.Errorf("构建请求失败: %w", err)
			}
			resp, err := client.Execute(req)
			if err != nil {
				return fmt.Errorf("请求失败: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
				return fmt.Errorf("读取响应失败: %w", err)
			}
			return nil
		},
	}
}

// createPinsCommand 创建 pins 命令组。
func createPinsCommand() *cli.Command {
	return &cli.Command{
		Name:  "pins",
		Usage: "管理 TOFU 证书指纹",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "列出已钉扎的证书指纹",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					env, err := newCmdEnv(cmd)
					if err != nil {
						return err
					}
					defer env.close()

					pins, err := env.trust.Pins(ctx)
					if err != nil {
						return fmt.Errorf("读取指纹失败: %w", err)
					}
					if len(pins) == 0 {
						fmt.Println("(无已钉扎的主机)")
						return nil
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "主机名\tSPKI SHA-256\t首次信任时间")
					for _, p := range pins {
						fmt.Fprintf(w, "%s\t%s\t%s\n",
							p.Hostname, p.SPKISHA256, p.FirstSeenAt.Format("2006-01-02 15:04:05"))
					}
					return w.Flush()
				},
			},
			{
				Name:      "revoke",
				Usage:     "吊销指定主机的指纹, 下次连接重新走首次信任",
				ArgsUsage: "<主机名>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					hostname := cmd.Args().First()
					if hostname == "" {
						return &usageError{msg: "缺少主机名参数"}
					}

					env, err := newCmdEnv(cmd)
					if err != nil {
						return err
					}
					defer env.close()

					if err := env.trust.Revoke(ctx, hostname); err != nil {
						return fmt.Errorf("吊销失败: %w", err)
					}
					fmt.Printf("已吊销 %s 的指纹\n", hostname)
					return nil
				},
			},
		},
	}
}

// createLogoutCommand 创建 logout 命令。
func createLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "注销当前会话并清理本地凭据",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newCmdEnv(cmd)
			if err != nil {
				return err
			}
			defer env.close()

			bundle, err := buildLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = bundle.cleanup() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()

			client, err := resumeClient(ctx, env, bundle.Logger)
			if err != nil {
				return err
			}
			if err := client.Logout(ctx); err != nil {
				return fmt.Errorf("注销失败: %w", err)
			}
			if err := env.store.Delete(ctx, currentServerKey); err != nil &&
				!errors.Is(err, xvault.ErrKeyNotFound) {
				return fmt.Errorf("清理当前服务器记录失败: %w", err)
			}
			fmt.Println("已注销")
			return nil
		},
	}
}

// resumeClient 从保险库恢复当前服务器的会话。
func resumeClient(ctx context.Context, env *cmdEnv, logger *slog.Logger) (*xclient.Client, error) {
	raw, err := env.store.Get(ctx, currentServerKey)
	if err != nil {
		if errors.Is(err, xvault.ErrKeyNotFound) {
			fmt.Fprintln(os.Stderr, "尚未登录任何服务器, 请先执行 finctl login")
			return nil, &exitError{code: 1}
		}
		return nil, fmt.Errorf("读取当前服务器失败: %w", err)
	}

	client, err := env.buildClient(logger)
	if err != nil {
		return nil, err
	}
	if err := client.Resume(ctx, string(raw)); err != nil {
		return nil, fmt.Errorf("恢复会话失败: %w", err)
	}
	return client, nil
}
