// Command tether connects to and serves tether-go endpoints and inspects
// their protocol trace files.
//
// Usage:
//
//	tether client --addr localhost:9000
//	tether client --ws wss://gateway.example.com/ws -H Authorization="Bearer $TOKEN"
//	tether server --listen :9000 --echo
//	tether server --listen :8080 --ws /events --protocol-log trace.cbor
//	tether log view --direction in trace.cbor
//	tether log stats trace.cbor
//
// Every command accepts --config with a YAML file; flags override it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tether-io/tether-go/internal/config"
	"github.com/tether-io/tether-go/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by client and server.
type rootOptions struct {
	configPath      string
	logLevel        string
	logFormat       string
	protocolLog     string
	protocolConsole bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "tether",
		Short:        "Client, server and trace tools for tether-go connections",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&opts.protocolLog, "protocol-log", "", "append protocol events to this CBOR file")
	pf.BoolVar(&opts.protocolConsole, "protocol-console", false, "mirror protocol events to the log at debug level")

	root.AddCommand(
		newClientCommand(opts),
		newServerCommand(opts),
		newLogCommand(),
		newVersionCommand(),
	)
	return root
}

// load reads the configuration file, if any, and applies the global
// flags on top of it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadWithDefaults(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.protocolLog != "" {
		cfg.Log.ProtocolFile = o.protocolLog
	}
	if o.protocolConsole {
		cfg.Log.ProtocolConsole = true
	}
	return cfg, nil
}

// newLoggers builds the operational logger writing to w and the protocol
// event logger. The close function flushes the trace file.
func newLoggers(cfg *config.Config, w io.Writer) (*slog.Logger, log.Logger, func() error, error) {
	logger, err := cfg.Log.NewLogger(w)
	if err != nil {
		return nil, nil, nil, err
	}
	protoLog, closeFn, err := cfg.Log.NewProtocolLogger(logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("protocol log: %w", err)
	}
	return logger, protoLog, closeFn, nil
}
