package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/apicall/apicall/internal/client"
	"github.com/apicall/apicall/internal/config"
	"github.com/apicall/apicall/internal/logging"
	"github.com/apicall/apicall/internal/server"
	"github.com/apicall/apicall/internal/telemetry"
	"github.com/apicall/apicall/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	call        string
	args        map[string]any
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	apiClient, err := client.New(cfg, client.Options{
		Logger:   logger,
		Metrics:  telemetry.NewMetrics(registry),
		Shutdown: ctx,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建调用客户端失败: %v\n", err)
		return 1
	}
	defer apiClient.Close()

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["apis"] = len(cfg.APIs)
		fields["actions"] = len(apiClient.Actions())
		fields["tokens"] = len(cfg.Tokens)
		fields["cache_provider"] = apiClient.CacheProvider()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.call != "" {
		return runCall(ctx, apiClient, opts)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["apis"] = len(cfg.APIs)
	fields["actions"] = cfg.ActionNames()
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_provider"] = apiClient.CacheProvider()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, cfg, apiClient, registry, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runCall 执行一次具名调用并把结果以 JSON 写到 stdout。
func runCall(ctx context.Context, apiClient *client.Client, opts cliOptions) int {
	value, err := apiClient.InvokeNamed(ctx, opts.call, opts.args)
	if err != nil {
		fmt.Fprintf(stdErr, "调用 %s 失败: %v\n", opts.call, err)
		return 1
	}
	switch v := value.(type) {
	case string:
		fmt.Fprintln(stdOut, v)
		return 0
	case []byte:
		_, _ = stdOut.Write(v)
		return 0
	}
	encoder := json.NewEncoder(stdOut)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("apicall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		callName   string
	)
	callArgs := make(map[string]any)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 APICALL_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&callName, "call", "", "执行一次调用，格式 API.Action")
	fs.Func("arg", "调用参数 key=value，可重复", func(raw string) error {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("参数格式应为 key=value: %s", raw)
		}
		callArgs[strings.TrimSpace(key)] = parseArgValue(value)
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if len(callArgs) > 0 && callName == "" {
		return cliOptions{}, fmt.Errorf("-arg 需要与 -call 一起使用")
	}

	path := os.Getenv("APICALL_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		call:        callName,
		args:        callArgs,
	}, nil
}

// parseArgValue 把可解析为 JSON 的值（数字、布尔、对象、数组）按 JSON 解码，其余保留字符串。
func parseArgValue(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return raw
}

func startHTTPServer(ctx context.Context, cfg *config.Config, apiClient *client.Client, gatherer prometheus.Gatherer, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Caller:     apiClient,
		Gatherer:   gatherer,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号，停止 Fiber 服务")
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
