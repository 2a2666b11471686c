package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"hookstorm/internal/banner"
	"hookstorm/internal/cli"
	"hookstorm/internal/dummy"
	"hookstorm/internal/loadtest"
	"hookstorm/internal/logging"
	"hookstorm/internal/metrics"
	"hookstorm/internal/runner"
	"hookstorm/internal/tui"
)

const envPrefix = "HOOKSTORM"

var (
	cfgFile   string
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "hookstorm",
	Short: "hookstorm - webhook API load tester",
	Long: `
hookstorm drives three scenarios against the webhook shell API at the same time:
GET /webhook/v1, POST /webhook/v1 and POST /jobs/v1/enqueue.

It runs in one of two modes:
1. TUI Mode (Default on a terminal): live progress bars per scenario
2. Headless Mode (--headless or no TTY): a single progress line for CI/CD usage

Results are printed as a table and saved as JSON and Markdown in --output-dir.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoadTest(cmd.Context(), viper.GetViper(), os.Stdout)
	},
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hookstorm.yaml)")
	pf.String("log-level", "info", "Log level: none, error, warn, info, debug")
	pf.String("log-format", "logfmt", "Log format: logfmt or json")

	f := rootCmd.Flags()
	f.String("api-url", runner.DefaultBaseURL, "Base URL of the webhook API")
	f.String("api-key", runner.DefaultAPIKey, "Security key sent with every request")
	f.IntP("concurrent-users", "c", runner.DefaultConcurrentUsers, "Total simulated users, split evenly across scenarios")
	f.IntP("duration", "d", runner.DefaultDurationMinutes, "Test duration in minutes")
	f.Int("timeout", int(runner.DefaultRequestTimeout/time.Second), "Request timeout in seconds")
	f.String("script", runner.DefaultScript, "Script name sent to the API")
	f.StringP("output-dir", "o", runner.DefaultOutputDir, "Directory for the JSON and Markdown reports")
	f.Bool("insecure", true, "Skip TLS certificate verification")
	f.Bool("headless", false, "Disable the TUI and print plain progress lines")
	f.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")

	cobra.CheckErr(bindFlags(viper.GetViper(), pf, f))
}

func bindFlags(v *viper.Viper, sets ...*pflag.FlagSet) error {
	for _, fs := range sets {
		if err := v.BindPFlags(fs); err != nil {
			return err
		}
	}
	return nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".hookstorm")
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envReplacer())
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// The default file is optional; an explicit one is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}

// envReplacer maps keys such as dummy.fail-rate to HOOKSTORM_DUMMY_FAIL_RATE.
func envReplacer() *strings.Replacer {
	return strings.NewReplacer("-", "_", ".", "_")
}

// configFromViper maps the merged flag, env and file settings onto a run config.
func configFromViper(v *viper.Viper) (*runner.Config, error) {
	cfg := runner.DefaultConfig()
	cfg.BaseURL = v.GetString("api-url")
	cfg.APIKey = v.GetString("api-key")
	cfg.ConcurrentUsers = v.GetInt("concurrent-users")
	cfg.Duration = time.Duration(v.GetInt("duration")) * time.Minute
	cfg.RequestTimeout = time.Duration(v.GetInt("timeout")) * time.Second
	cfg.Script = v.GetString("script")
	cfg.OutputDir = v.GetString("output-dir")
	cfg.InsecureTLS = v.GetBool("insecure")

	if err := cfg.Validate(len(runner.DefaultScenarios())); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runLoadTest(ctx context.Context, v *viper.Viper, out io.Writer) error {
	if configErr != nil {
		return configErr
	}

	cfg, err := configFromViper(v)
	if err != nil {
		return err
	}

	headless := v.GetBool("headless") || !isatty.IsTerminal(os.Stdout.Fd())
	useColor := isatty.IsTerminal(os.Stderr.Fd())

	var (
		logOut io.Writer = os.Stderr
		sink   *tui.LogSink
	)
	if !headless {
		sink = tui.NewLogSink()
		logOut = sink
	}

	logger, err := logging.New(logOut, v.GetString("log-level"), v.GetString("log-format"), useColor)
	if err != nil {
		return err
	}

	opts := loadtest.Options{Logger: logger}

	if addr := v.GetString("metrics-addr"); addr != "" {
		collector := metrics.New()
		opts.Metrics = collector

		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := collector.Serve(metricsCtx, addr); err != nil {
				level.Error(logger).Log("msg", "metrics server failed", "addr", addr, "err", err)
			}
		}()
		level.Info(logger).Log("msg", "serving metrics", "addr", addr)
	}

	if headless {
		_, err = cli.Start(ctx, cfg, opts, out)
	} else {
		_, err = tui.Run(ctx, cfg, opts, sink, out)
	}
	return err
}

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a mock webhook API to test against",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		server := dummy.Start(dummy.ServerConfig{
			Port:     v.GetInt("dummy.port"),
			APIKey:   v.GetString("dummy.api-key"),
			MinDelay: v.GetDuration("dummy.min-delay"),
			MaxDelay: v.GetDuration("dummy.max-delay"),
			FailRate: v.GetFloat64("dummy.fail-rate"),
		})

		<-cmd.Context().Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	f := dummyCmd.Flags()
	f.IntP("port", "p", 8080, "Port to run the mock API on")
	f.String("api-key", "", "Reject requests whose key differs (empty accepts any key)")
	f.Duration("min-delay", 0, "Minimum simulated processing time")
	f.Duration("max-delay", 0, "Maximum simulated processing time")
	f.Float64("fail-rate", 0, "Share of valid requests answered with 500 (0-1)")

	cobra.CheckErr(bindDummyFlags(viper.GetViper(), f))
}

var dummyFlags = []string{"port", "api-key", "min-delay", "max-delay", "fail-rate"}

// bindDummyFlags binds the mock server flags under the dummy. key prefix so
// they do not collide with the root command's api-key.
func bindDummyFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, name := range dummyFlags {
		if err := v.BindPFlag("dummy."+name, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind dummy flag %s: %w", name, err)
		}
	}
	return nil
}
