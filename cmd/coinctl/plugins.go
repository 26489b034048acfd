package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	audithook "github.com/xraph/coinledger/audit_hook"
	kafkahook "github.com/xraph/coinledger/kafka_hook"
	"github.com/xraph/coinledger/service"
)

// pluginOpts returns the service options for the plugins enabled in config.
func (a *app) pluginOpts(logger *slog.Logger) ([]service.Option, error) {
	var opts []service.Option

	if path := a.v.GetString("audit_log"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f.Close)

		var mu sync.Mutex
		enc := json.NewEncoder(f)
		rec := audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(e)
		})
		opts = append(opts, service.WithPlugin(audithook.New(rec, audithook.WithLogger(logger))))
	}

	if brokers := a.v.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		w := kafkahook.NewWriter(brokers, a.v.GetString("kafka.topic"))
		opts = append(opts, service.WithPlugin(kafkahook.New(w, kafkahook.WithLogger(logger))))
	}

	return opts, nil
}
