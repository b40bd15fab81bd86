package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tether-io/tether-go/internal/config"
	"github.com/tether-io/tether-go/pkg/connection"
)

type serverOptions struct {
	listen  string
	wsPath  string
	origins []string
	echo    bool
}

func newServerCommand(root *rootOptions) *cobra.Command {
	opts := &serverOptions{}
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept connections and print what peers send",
		Long: `Accept connections and print what peers send.

The server runs until interrupted. With --echo every command is sent back
to the peer it came from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd.Flags(), cfg)
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, opts.echo, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	opts.register(cmd.Flags())
	return cmd
}

func (o *serverOptions) register(f *pflag.FlagSet) {
	f.StringVar(&o.listen, "listen", "", "address to listen on, e.g. :9000")
	f.StringVar(&o.wsPath, "ws", "", "serve WebSocket upgrades on this path instead of plain sockets")
	f.StringSliceVar(&o.origins, "allow-origin", nil, "accepted WebSocket origins (\"*\" for any)")
	f.BoolVar(&o.echo, "echo", false, "send every command back to its peer")
}

// apply overrides cfg with the flags the user set explicitly.
func (o *serverOptions) apply(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("listen") {
		cfg.Server.Listen = o.listen
	}
	if flags.Changed("ws") {
		cfg.Server.WebSocket = true
		cfg.Server.Path = o.wsPath
	}
	if flags.Changed("allow-origin") {
		cfg.Server.AllowedOrigins = o.origins
	}
}

// runServer serves until ctx is cancelled and returns once the server
// has stopped.
func runServer(ctx context.Context, cfg *config.Config, echo bool, stdout, stderr io.Writer) error {
	logger, protoLog, closeLog, err := newLoggers(cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	srv, err := cfg.NewServer(logger, protoLog)
	if err != nil {
		return err
	}

	var m *connection.ServerManager
	printer := newServerPrinter(stdout)
	if echo {
		printer.onData = func(peer connection.PeerInfo, cmd connection.Command) {
			m.ExecuteCommand(peer.ID, cmd, false, connection.WithDescription("echo"))
		}
	}

	m, err = connection.NewServerManager(connection.ServerConfig{
		Server:          srv,
		Listener:        printer,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
		ProtocolLogger:  protoLog,
	})
	if err != nil {
		return err
	}

	// Start returns nil only once cancellation has closed the listener;
	// the rest of the teardown ends with OnStopped.
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-printer.stopped
	return nil
}

// serverPrinter renders server notifications as status lines. Peer
// callbacks arrive on many goroutines, so writes are serialized.
type serverPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	onData  func(peer connection.PeerInfo, cmd connection.Command)
	stopped chan struct{}
}

func newServerPrinter(out io.Writer) *serverPrinter {
	if out == nil {
		out = os.Stdout
	}
	return &serverPrinter{out: out, stopped: make(chan struct{})}
}

func (p *serverPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *serverPrinter) OnStarted() { p.printf("* started\n") }

func (p *serverPrinter) OnStopped() {
	p.printf("* stopped\n")
	close(p.stopped)
}

func (p *serverPrinter) OnStartFailed(code connection.ErrorCode, message string) {
	p.printf("! start failed [%d %s]: %s\n", int(code), code, message)
}

func (p *serverPrinter) OnClientConnected(peer connection.PeerInfo) {
	p.printf("* %s connected from %s\n", peer.ID, peer.RemoteAddr)
}

func (p *serverPrinter) OnClientDisconnected(peer connection.PeerInfo) {
	p.printf("* %s disconnected\n", peer.ID)
}

func (p *serverPrinter) OnReceivedData(peer connection.PeerInfo, cmd connection.Command, action string) {
	if action != "" {
		p.printf("%s %s\n", peer.ID, formatCommand("<"+action, cmd))
	} else {
		p.printf("%s %s\n", peer.ID, formatCommand("<", cmd))
	}
	if p.onData != nil {
		p.onData(peer, cmd)
	}
}

func (p *serverPrinter) OnPeerFailed(peer connection.PeerInfo, code connection.ErrorCode, message string, _ error) {
	p.printf("! %s failed [%d %s]: %s\n", peer.ID, int(code), code, message)
}

var _ connection.ServerListener = (*serverPrinter)(nil)
