package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/bandit/pkg/bandit"
	"github.com/psantana5/bandit/pkg/logging"
	"github.com/psantana5/bandit/pkg/metrics"
	"github.com/psantana5/bandit/pkg/shutdown"
	"github.com/psantana5/bandit/pkg/tlsconfig"
	"github.com/psantana5/bandit/pkg/tracing"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile      string
	outputFormat string

	client   *bandit.Client
	provider *tracing.Provider
	cleanup  *shutdown.Manager
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bandit",
	Short: "Client for the Bandit job platform",
	Long: `bandit triggers and watches jobs on a Bandit server and, from inside a running
job, reports metrics, metadata, emails and dashboards.

Without credentials every command runs locally and prints what it would do.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. An interrupt cancels the running command; cleanup hooks run
// either way.
func Execute() error {
	cleanup = shutdown.New(5 * time.Second)
	ctx, stop := cleanup.NotifyContext(context.Background())
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := cleanup.Shutdown(); cerr != nil {
		if err == nil {
			return cerr
		}
		fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", cerr)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bandit/config.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json or yaml")
	flags.String("url", "", "Bandit server URL ("+bandit.EnvURL+" wins)")
	flags.String("username", "", "Bandit username ("+bandit.EnvUsername+" wins)")
	flags.String("apikey", "", "Bandit API key ("+bandit.EnvAPIKey+" wins)")
	flags.String("job-root", "", "job volume mount point (default "+bandit.DefaultJobRoot+", a scratch directory in local mode)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.Bool("log-json", false, "log in JSON")
	flags.String("metrics-file", "", "write client metrics to this Prometheus textfile on exit")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint for request traces")
	flags.Bool("otlp-insecure", false, "send traces without TLS")
	flags.String("ca-cert", "", "CA certificate for the Bandit server")
	flags.String("client-cert", "", "client certificate for mutual TLS")
	flags.String("client-key", "", "client key for mutual TLS")
	flags.Float64("rate-limit", 0, "maximum API requests per second (0 means unlimited)")

	for _, name := range []string{
		"url", "username", "apikey", "job-root", "log-level", "log-json", "metrics-file",
		"otlp-endpoint", "otlp-insecure", "ca-cert", "client-cert", "client-key", "rate-limit",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in the config file if one exists
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".bandit"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// newClient builds the client shared by every subcommand. Flag and config
// file values are constructor options, so BANDIT_CLIENT_* variables still
// override them.
func newClient(ctx context.Context) (*bandit.Client, error) {
	if client != nil {
		return client, nil
	}

	logger := logging.NewLogger(logging.ParseLevel(viper.GetString("log-level")), viper.GetBool("log-json"))

	var err error
	provider, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "bandit-cli",
		ServiceVersion: Version,
		OTLPEndpoint:   viper.GetString("otlp-endpoint"),
		Insecure:       viper.GetBool("otlp-insecure"),
	})
	if err != nil {
		return nil, err
	}
	onShutdown("tracing", provider.Shutdown)

	options := []bandit.Option{
		bandit.WithLogger(logger),
		bandit.WithMetrics(metrics.NewCollector()),
		bandit.WithTracer(provider.Tracer()),
		bandit.WithUserAgent("bandit-cli/" + Version),
	}
	if ca, cert := viper.GetString("ca-cert"), viper.GetString("client-cert"); ca != "" || cert != "" {
		tlsConfig, err := tlsconfig.LoadClientTLSConfig(cert, viper.GetString("client-key"), ca)
		if err != nil {
			return nil, err
		}
		options = append(options, bandit.WithTLSConfig(tlsConfig))
	}
	if rps := viper.GetFloat64("rate-limit"); rps > 0 {
		options = append(options, bandit.WithRateLimit(rps, 1))
	}

	client, err = bandit.New(bandit.Options{
		Username: viper.GetString("username"),
		APIKey:   viper.GetString("apikey"),
		URL:      viper.GetString("url"),
		JobRoot:  viper.GetString("job-root"),
	}, options...)
	if err != nil {
		return nil, err
	}
	if path := viper.GetString("metrics-file"); path != "" {
		c := client
		onShutdown("metrics", func(context.Context) error {
			return c.Metrics().WriteTextfile(path)
		})
	}
	return client, nil
}

func onShutdown(name string, fn func(context.Context) error) {
	if cleanup != nil {
		cleanup.Register(name, fn)
	}
}

// requireClient is a PreRunE for commands that need a client.
func requireClient(cmd *cobra.Command, args []string) error {
	_, err := newClient(cmd.Context())
	return err
}
