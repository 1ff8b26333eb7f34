// Package interactive provides the interactive command-line interface
// for sessionkit-probe.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/novafeed/sessionkit-go/pkg/credentials"
	"github.com/novafeed/sessionkit-go/pkg/duplex"
	"github.com/novafeed/sessionkit-go/pkg/reachability"
	"github.com/novafeed/sessionkit-go/pkg/retry"
)

// Deps carries the wired session stack into the interactive probe.
type Deps struct {
	Session  *credentials.Session
	Conn     *duplex.Conn
	Monitor  *reachability.Monitor
	Executor *retry.Executor
	Logger   *slog.Logger
}

// Probe handles interactive mode for sessionkit-probe.
type Probe struct {
	session  *credentials.Session
	conn     *duplex.Conn
	monitor  *reachability.Monitor
	executor *retry.Executor
	logger   *slog.Logger
	rl       *readline.Instance

	watchCancels map[string]func()
}

// New creates a new interactive probe handler.
func New(deps Deps) (*Probe, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "probe> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	p := &Probe{
		session:      deps.Session,
		conn:         deps.Conn,
		monitor:      deps.Monitor,
		executor:     deps.Executor,
		logger:       deps.Logger,
		rl:           rl,
		watchCancels: make(map[string]func()),
	}

	// Surface async connection activity above the prompt.
	p.conn.OnStateChange(func(oldState, newState duplex.State) {
		fmt.Fprintf(p.rl.Stdout(), "\n[%s] Connection: %s -> %s\n",
			time.Now().Format("15:04:05"), oldState, newState)
		p.rl.Refresh()
	})
	p.conn.OnError(func(err error) {
		fmt.Fprintf(p.rl.Stdout(), "\n[%s] Connection error: %v\n",
			time.Now().Format("15:04:05"), err)
		p.rl.Refresh()
	})
	p.monitor.OnChange(func(snap reachability.Snapshot) {
		fmt.Fprintf(p.rl.Stdout(), "\n[%s] Network: %s\n",
			time.Now().Format("15:04:05"), formatSnapshot(snap))
		p.rl.Refresh()
	})

	return p, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (p *Probe) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Run starts the interactive command loop.
func (p *Probe) Run(ctx context.Context, cancel context.CancelFunc) {
	defer p.rl.Close()

	p.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := p.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			p.printHelp()

		case "status", "s":
			p.cmdStatus()

		case "net", "n":
			p.cmdNet()

		case "token", "t":
			p.cmdToken(ctx)

		case "login":
			p.cmdLogin(args)

		case "logout":
			p.cmdLogout(ctx)

		case "connect", "c":
			p.cmdConnect(ctx, args)

		case "send":
			p.cmdSend(args)

		case "watch":
			p.cmdWatch(args)

		case "disconnect", "d":
			p.cmdDisconnect()

		case "quit", "exit", "q":
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(p.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (p *Probe) printHelp() {
	fmt.Fprintln(p.rl.Stdout(), `
Sessionkit Probe Commands:
  Session:
    token                          - Obtain a valid access secret (refreshing if needed)
    login <access> <refresh> <ttl> - Install a credential pair (ttl in seconds)
    logout                         - Invalidate the session and clear credentials

  Connection:
    connect <identity>   - Open the duplex connection
    send <type> [json]   - Send a frame
    watch <type>         - Toggle printing of inbound frames of a type
    disconnect           - Close the duplex connection

  General:
    status               - Show session and connection state
    net                  - Show the current reachability snapshot
    help                 - Show this help
    quit                 - Exit`)
}

// cmdStatus shows session and connection state.
func (p *Probe) cmdStatus() {
	fmt.Fprintln(p.rl.Stdout(), "\nProbe Status")
	fmt.Fprintln(p.rl.Stdout(), "-------------------------------------------")

	auth := "no"
	if p.session.Authenticated() {
		auth = "yes"
	}
	fmt.Fprintf(p.rl.Stdout(), "  Authenticated: %s\n", auth)
	fmt.Fprintf(p.rl.Stdout(), "  Connection:    %s\n", p.conn.State())
	fmt.Fprintf(p.rl.Stdout(), "  Network:       %s\n", formatSnapshot(p.monitor.Current()))

	if len(p.watchCancels) > 0 {
		types := make([]string, 0, len(p.watchCancels))
		for t := range p.watchCancels {
			types = append(types, t)
		}
		fmt.Fprintf(p.rl.Stdout(), "  Watching:      %s\n", strings.Join(types, ", "))
	}
	fmt.Fprintln(p.rl.Stdout())
}

// cmdNet shows the reachability snapshot.
func (p *Probe) cmdNet() {
	snap := p.monitor.Current()
	fmt.Fprintf(p.rl.Stdout(), "Network: %s\n", formatSnapshot(snap))
}

// cmdToken obtains an access secret through the retry executor, so the
// full gate/backoff path is exercised.
func (p *Probe) cmdToken(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	secret, err := retry.Do(opCtx, p.executor, retry.Config{
		MaxAttempts:    4,
		AttemptTimeout: 15 * time.Second,
	}, func(ctx context.Context) (string, error) {
		return p.session.AccessSecret(ctx)
	})
	if err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Failed to obtain access secret: %v\n", err)
		return
	}

	// Show only a prefix; the full secret does not belong on a terminal.
	display := secret
	if len(display) > 12 {
		display = display[:12] + "..."
	}
	fmt.Fprintf(p.rl.Stdout(), "Access secret: %s (%d bytes)\n", display, len(secret))
}

// cmdLogin installs a credential pair.
func (p *Probe) cmdLogin(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(p.rl.Stdout(), "Usage: login <access> <refresh> <ttl-seconds>")
		return
	}

	ttl, err := strconv.Atoi(args[2])
	if err != nil || ttl <= 0 {
		fmt.Fprintf(p.rl.Stdout(), "Invalid ttl: %s\n", args[2])
		return
	}

	if err := p.session.SetCredentials(args[0], args[1], time.Duration(ttl)*time.Second); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Failed to store credentials: %v\n", err)
		return
	}
	fmt.Fprintf(p.rl.Stdout(), "Credentials stored (expire in %ds)\n", ttl)
}

// cmdLogout invalidates the session.
func (p *Probe) cmdLogout(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	p.session.Logout(opCtx)
	fmt.Fprintln(p.rl.Stdout(), "Logged out")
}

// cmdConnect opens the duplex connection.
func (p *Probe) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(p.rl.Stdout(), "Usage: connect <identity>")
		return
	}

	fmt.Fprintf(p.rl.Stdout(), "Connecting as %s...\n", args[0])
	opCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	if err := p.conn.Connect(opCtx, args[0]); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintln(p.rl.Stdout(), "Connected")
}

// cmdSend sends one frame.
func (p *Probe) cmdSend(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(p.rl.Stdout(), "Usage: send <type> [json-payload]")
		fmt.Fprintln(p.rl.Stdout(), `  Example: send feed.subscribe {"channel":"news"}`)
		return
	}

	frame := duplex.Frame{Type: args[0]}
	if len(args) > 1 {
		payload := strings.Join(args[1:], " ")
		if !json.Valid([]byte(payload)) {
			fmt.Fprintf(p.rl.Stdout(), "Payload is not valid JSON: %s\n", payload)
			return
		}
		frame.Payload = json.RawMessage(payload)
	}

	if err := p.conn.Send(frame); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	fmt.Fprintln(p.rl.Stdout(), "Sent")
}

// cmdWatch toggles printing of inbound frames of a type.
func (p *Probe) cmdWatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(p.rl.Stdout(), "Usage: watch <type>")
		return
	}
	frameType := args[0]

	if cancel, ok := p.watchCancels[frameType]; ok {
		cancel()
		delete(p.watchCancels, frameType)
		fmt.Fprintf(p.rl.Stdout(), "Stopped watching %s\n", frameType)
		return
	}

	p.watchCancels[frameType] = p.conn.Subscribe(frameType, func(f duplex.Frame) {
		fmt.Fprintf(p.rl.Stdout(), "\n[%s] %s: %s\n",
			time.Now().Format("15:04:05"), f.Type, string(f.Payload))
		p.rl.Refresh()
	})
	fmt.Fprintf(p.rl.Stdout(), "Watching %s\n", frameType)
}

// cmdDisconnect closes the duplex connection.
func (p *Probe) cmdDisconnect() {
	p.conn.Disconnect()
	fmt.Fprintln(p.rl.Stdout(), "Disconnected")
}

// formatSnapshot renders a reachability snapshot on one line.
func formatSnapshot(snap reachability.Snapshot) string {
	if !snap.Connected {
		return "offline"
	}
	s := fmt.Sprintf("online via %s", snap.Interface)
	if snap.Expensive {
		s += " (expensive)"
	}
	if snap.Constrained {
		s += " (constrained)"
	}
	return s
}
