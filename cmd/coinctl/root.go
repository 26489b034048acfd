package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/service"
	"github.com/xraph/coinledger/store/backend"
)

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	svc     *service.Service
	closers []func() error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "coinctl",
		Short:        "Operate a coin balance ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default: ./coinctl.yaml)")
	flags.String("driver", backend.DriverSQLite, "store driver: memory, redis, postgres, sqlite or mongo")
	flags.String("dsn", "coinctl.db", "store address")
	flags.String("database", "", "mongo database name")
	flags.String("namespace", "", "redis key namespace")
	flags.String("codec", "json", "record codec: json or msgpack")
	flags.Int("remove-batch-size", 100, "accounts deleted per commit when removing a coin")
	flags.Bool("verbose", false, "log plugin and service activity")
	flags.String("initiator", "", "uid recorded as the initiator of events")
	flags.String("audit-log", "", "append audit records as JSON lines to this file")
	flags.StringSlice("kafka-brokers", nil, "publish events to these Kafka brokers")
	flags.String("kafka-topic", "", "Kafka topic for events (default: coinledger.events)")

	for key, flag := range map[string]string{
		"store.driver":      "driver",
		"store.dsn":         "dsn",
		"store.database":    "database",
		"store.namespace":   "namespace",
		"store.codec":       "codec",
		"remove_batch_size": "remove-batch-size",
		"verbose":           "verbose",
		"initiator":         "initiator",
		"config":            "config",
		"audit_log":         "audit-log",
		"kafka.brokers":     "kafka-brokers",
		"kafka.topic":       "kafka-topic",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.coinCmd(),
		a.principalCmd(),
		a.amountCmd("emit", "Emit new supply to a holder", "held", (*service.Service).Emit, (*service.Service).EmitHeld),
		a.amountCmd("burn", "Burn supply from a holder", "held", (*service.Service).Burn, (*service.Service).BurnHeld),
		a.amountCmd("hold", "Move available balance to held", "", (*service.Service).Hold, nil),
		a.amountCmd("unhold", "Release held balance to available", "", (*service.Service).Unhold, nil),
		a.nullifyCmd(),
		a.transferCmd(),
		a.balanceCmd(),
		a.verifyCmd(),
		a.eventsCmd(),
	)
	return root, a
}

// close stops the service if a command opened it, then releases plugin outputs.
func (a *app) close(ctx context.Context) error {
	var errs coinledger.MultiError
	if a.svc != nil {
		errs.Add(a.svc.Stop(ctx))
		a.svc = nil
	}
	for _, c := range a.closers {
		errs.Add(c())
	}
	a.closers = nil
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// configure loads .env and the config file into a.v.
func (a *app) configure() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	a.v.SetEnvPrefix("COINCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	} else {
		a.v.SetConfigName("coinctl")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// open configures the app, then builds and starts the service.
func (a *app) open(ctx context.Context) error {
	if err := a.configure(); err != nil {
		return err
	}

	cfg := backend.Config{
		Driver:    a.v.GetString("store.driver"),
		DSN:       a.v.GetString("store.dsn"),
		Database:  a.v.GetString("store.database"),
		Namespace: a.v.GetString("store.namespace"),
		Codec:     a.v.GetString("store.codec"),
	}

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}

	logger := a.logger()
	plugins, err := a.pluginOpts(logger)
	if err != nil {
		_ = st.Close()
		return err
	}

	opts := append([]service.Option{
		service.WithLogger(logger),
		service.WithLedgerOptions(
			coinledger.WithLogger(logger),
			coinledger.WithRemoveBatchSize(a.v.GetInt("remove_batch_size")),
		),
	}, plugins...)

	a.svc = service.New(st, opts...)
	return a.svc.Start(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
