package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tether-io/tether-go/internal/config"
	"github.com/tether-io/tether-go/pkg/connection"
)

type clientOptions struct {
	addr       string
	url        string
	headers    map[string]string
	retries    int
	retryDelay time.Duration
	backoff    bool
	insecure   bool
}

func newClientCommand(root *rootOptions) *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a server and send commands interactively",
		Long: `Connect to a server and send commands interactively.

Every line typed is sent as a text command. Lines starting with '/' are
client commands; type /help for the list. Start a line with '//' to send
text that begins with '/'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), cfg)
			if err := cfg.ValidateClient(); err != nil {
				return err
			}
			return runClient(cmd.Context(), cfg)
		},
	}

	opts.register(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("addr", "ws")
	return cmd
}

func (o *clientOptions) register(f *pflag.FlagSet) {
	f.StringVar(&o.addr, "addr", "", "host:port of a plain socket server")
	f.StringVar(&o.url, "ws", "", "ws:// or wss:// URL of a WebSocket server")
	f.StringToStringVarP(&o.headers, "header", "H", nil, "handshake header as key=value (repeatable)")
	f.IntVar(&o.retries, "retries", 0, "automatic reconnects per failure (0 disables)")
	f.DurationVar(&o.retryDelay, "retry-delay", 0, "delay before each reconnect")
	f.BoolVar(&o.backoff, "backoff", false, "grow the reconnect delay exponentially")
	f.BoolVar(&o.insecure, "insecure", false, "skip TLS certificate verification")
}

// apply overrides cfg with the flags the user set explicitly.
func (o *clientOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("addr") {
		cfg.Client.Address = o.addr
		cfg.Client.URL = ""
	}
	if flags.Changed("ws") {
		cfg.Client.URL = o.url
		cfg.Client.Address = ""
	}
	if len(o.headers) > 0 {
		if cfg.Client.Headers == nil {
			cfg.Client.Headers = make(map[string]string, len(o.headers))
		}
		for k, v := range o.headers {
			cfg.Client.Headers[k] = v
		}
	}
	if flags.Changed("retries") {
		cfg.Retry.MaxAttempts = o.retries
		if o.retries <= 0 {
			cfg.Retry.MaxAttempts = -1
		}
	}
	if flags.Changed("retry-delay") {
		cfg.Retry.Delay = o.retryDelay
	}
	if o.backoff {
		cfg.Retry.Strategy = "backoff"
	}
	if o.insecure {
		cfg.TLS.InsecureSkipVerify = true
	}
}

func runClient(ctx context.Context, cfg *config.Config) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tether> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryLimit:    500,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	logger, protoLog, closeLog, err := newLoggers(cfg, rl.Stderr())
	if err != nil {
		return err
	}
	defer closeLog()

	dialer, err := cfg.NewDialer(logger, protoLog)
	if err != nil {
		return err
	}

	out := rl.Stdout()
	m, err := connection.NewClientManager(connection.ClientConfig{
		Dialer:         dialer,
		Listener:       clientPrinter(out),
		Retry:          cfg.RetryStrategy(),
		Logger:         logger,
		ProtocolLogger: protoLog,
	})
	if err != nil {
		return err
	}
	defer m.Release()

	repl := &clientREPL{m: m, out: out, endpoint: dialer.Endpoint()}
	repl.printHelp()
	go m.Connect(ctx)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		if repl.handle(ctx, line) {
			return nil
		}
	}
}

// clientPrinter renders lifecycle notifications as status lines.
func clientPrinter(out io.Writer) connection.ClientListenerFuncs {
	return connection.ClientListenerFuncs{
		Connecting: func() { fmt.Fprintln(out, "* connecting") },
		Connected:  func() { fmt.Fprintln(out, "* connected") },
		Failed: func(code connection.ErrorCode, message string, _ error) {
			fmt.Fprintf(out, "! failed [%d %s]: %s\n", int(code), code, message)
		},
		Disconnected: func(byRemote bool) {
			if byRemote {
				fmt.Fprintln(out, "* disconnected by remote")
				return
			}
			fmt.Fprintln(out, "* disconnected")
		},
		ReceivedData: func(cmd connection.Command) {
			fmt.Fprintln(out, formatCommand("<", cmd))
		},
	}
}

// clientREPL interprets the lines typed at the client prompt.
type clientREPL struct {
	m        *connection.ClientManager
	out      io.Writer
	endpoint string
}

// handle runs one input line and reports whether the session should end.
func (r *clientREPL) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "//") {
		r.send(connection.Text(line[1:]))
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(connection.Text(line))
		return false
	}

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		r.printHelp()
	case "/connect":
		fmt.Fprintf(r.out, "state: %s\n", r.m.Connect(ctx))
	case "/disconnect":
		fmt.Fprintf(r.out, "state: %s\n", r.m.DisconnectManually())
	case "/status":
		fmt.Fprintf(r.out, "endpoint: %s\nstate:    %s\nretries:  %d\n", r.endpoint, r.m.State(), r.m.RetryCount())
	case "/bin":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: /bin <hex bytes>")
			return false
		}
		data, err := hex.DecodeString(strings.Join(fields[1:], ""))
		if err != nil {
			fmt.Fprintf(r.out, "invalid hex: %v\n", err)
			return false
		}
		r.send(connection.Binary(data))
	default:
		fmt.Fprintf(r.out, "unknown command: %s (type /help for commands)\n", fields[0])
	}
	return false
}

func (r *clientREPL) send(cmd connection.Command) {
	if !r.m.ExecuteCommand(cmd, connection.WithDescription("console")) {
		fmt.Fprintf(r.out, "! not sent (state %s)\n", r.m.State())
		return
	}
	fmt.Fprintln(r.out, formatCommand(">", cmd))
}

func (r *clientREPL) printHelp() {
	fmt.Fprintln(r.out, `Commands:
  <text>           send a text command
  /bin <hex>       send a binary command, e.g. /bin 01 02 ff
                   (needs length-prefix framing or a WebSocket)
  /connect         connect (resets the retry budget)
  /disconnect      disconnect without reconnecting
  /status          show endpoint, state and retry count
  /help            show this help
  /quit            release the client and exit`)
}

// formatCommand renders a command for the console.
func formatCommand(prefix string, cmd connection.Command) string {
	switch c := cmd.(type) {
	case connection.Text:
		return fmt.Sprintf("%s %s", prefix, string(c))
	case connection.Binary:
		return fmt.Sprintf("%s [%d bytes] %s", prefix, len(c), hex.EncodeToString(c))
	default:
		return fmt.Sprintf("%s %v", prefix, cmd)
	}
}
