// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package run implements busctl's run command: it loads configuration,
// wires up a transport and persistence backend, registers the demo order
// saga, and runs the bus until interrupted.
package run

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/riverrun/msgbus/examples/ordersaga"
	"github.com/riverrun/msgbus/internal/cli"
	"github.com/riverrun/msgbus/internal/config"
	"github.com/riverrun/msgbus/internal/metrics"
	"github.com/riverrun/msgbus/internal/persistence/memory"
	"github.com/riverrun/msgbus/internal/persistence/sql"
	jsonserializer "github.com/riverrun/msgbus/internal/serializer/json"
	transportmemory "github.com/riverrun/msgbus/internal/transport/memory"
	transportnats "github.com/riverrun/msgbus/internal/transport/nats"
	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/saga"
)

const shutdownTimeout = 10 * time.Second

// NewCommand creates the run command.
func NewCommand(f *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bus and workflow engine",
		Long: `Run loads a transport and persistence backend from the config file
(or environment variables), wires up the order saga demo workflow, and
dispatches messages until interrupted with SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runBus(ctx, f)
		},
	}
}

func runBus(ctx context.Context, f *cli.Flags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	serializer := jsonserializer.New()
	collector := metrics.New(prometheus.DefaultRegisterer)

	builder := bus.Configure().
		WithSerializer(serializer).
		WithMetrics(collector).
		WithConcurrency(cfg.Concurrency)

	transport, err := buildTransport(cfg.Transport, builder.Registry(), serializer)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	builder.WithTransport(transport)

	persistence, closePersistence, err := buildPersistence(cfg.Persistence, serializer)
	if err != nil {
		return fmt.Errorf("build persistence: %w", err)
	}
	if closePersistence != nil {
		defer closePersistence()
	}

	var b *bus.Bus
	engine := saga.NewEngine(persistence, serializer, nil).WithMetrics(collector)
	engine.Register(ordersaga.Definition(func() *bus.Bus { return b }, nil))
	engine.Wire(builder)

	b, err = builder.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize bus: %w", err)
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start bus: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return b.Stop(stopCtx)
}

func buildTransport(cfg config.Transport, registry *bus.Registry, serializer bus.Serializer) (bus.Transport, error) {
	switch cfg.Kind {
	case "", "memory":
		return transportmemory.New(), nil
	case "nats":
		opts := transportnats.Options{
			URL:      cfg.NATS.URL,
			Stream:   cfg.NATS.Stream,
			Subject:  cfg.NATS.Subject,
			Consumer: cfg.NATS.Consumer,
		}
		return transportnats.New(opts, registry, serializer), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

func buildPersistence(cfg config.Persistence, serializer bus.Serializer) (saga.Persistence, func(), error) {
	switch cfg.Kind {
	case "", "memory":
		return memory.New(serializer), nil, nil
	case "sql":
		backend, err := sql.New(sql.Config{Path: cfg.SQL.Path, WAL: cfg.SQL.WAL}, serializer)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence kind %q", cfg.Kind)
	}
}
