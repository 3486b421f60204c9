// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/protocol"
	"github.com/cxxmod/modmapper/internal/resolver"
)

const defaultTCPHost = "localhost"

type (
	// Option configures Open.
	Option func(*openOptions)

	openOptions struct {
		ident  string
		agent  string
		logger *log.Logger
	}
)

// WithIdent sets the identity presented on connect when the descriptor
// carries no "?ident" suffix. Compilers pass the main source file.
func WithIdent(ident string) Option {
	return func(o *openOptions) { o.ident = ident }
}

// WithAgent overrides the agent name sent on connect.
func WithAgent(agent string) Option {
	return func(o *openOptions) { o.agent = agent }
}

// WithLogger sets the logger used for fallbacks and traces.
func WithLogger(l *log.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// Open connects to the mapper named by invocation and performs the
// handshake. A descriptor that cannot be parsed or opened falls back to the
// default in-process resolver with a warning. A handshake the mapper rejects
// is fatal and returns a *HandshakeError.
func Open(ctx context.Context, invocation string, opts ...Option) (*Client, error) {
	o := openOptions{agent: resolver.SupportedAgent}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Default().WithPrefix("mapper")
	}

	spec, err := ParseInvocation(invocation, o.ident)
	if err != nil {
		o.logger.Warn("cannot parse mapper invocation, using default", "error", err)
		spec = TransportSpec{Kind: TransportDefault, Ident: o.ident}
	}

	c, err := dial(ctx, spec, o.logger)
	if err != nil {
		o.logger.Warn("cannot open mapper, using default", "invocation", invocation, "error", err)
		c = newDefaultClient(TransportSpec{Kind: TransportDefault, Ident: spec.Ident}, o.logger)
	}

	if err := c.handshake(invocation, o.agent); err != nil {
		_ = c.Close() // the handshake error is the one to report
		return nil, err
	}
	c.log().Debug("mapper connected", "transport", c.spec.Kind, "repo", c.repo)
	return c, nil
}

func dial(ctx context.Context, spec TransportSpec, logger *log.Logger) (*Client, error) {
	switch spec.Kind {
	case TransportDefault:
		return newDefaultClient(spec, logger), nil
	case TransportFDs:
		return openFDs(spec, logger)
	case TransportSocket:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", spec.Path)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", spec.Path, err)
		}
		return newPipedClient(spec, conn, conn, logger, conn), nil
	case TransportTCP:
		host := spec.Host
		if host == "" {
			host = defaultTCPHost
		}
		addr := net.JoinHostPort(host, strconv.Itoa(spec.Port))
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", addr, err)
		}
		return newPipedClient(spec, conn, conn, logger, conn), nil
	case TransportProgram:
		return spawn(spec, logger)
	case TransportTupleFile:
		return openTupleFile(spec, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %s", spec.Kind)
	}
}

// newDefaultClient serves requests from an ad-hoc resolver that names every
// module by default and probes the repository for header units.
func newDefaultClient(spec TransportSpec, logger *log.Logger) *Client {
	r := resolver.New(
		resolver.WithRepo(resolver.DefaultRepo),
		resolver.WithDefaultMap(true),
		resolver.WithDefaultTranslate(true),
		resolver.WithLogger(logger.WithPrefix("resolver")),
	)
	return newDirectClient(spec, r, logger)
}

// openTupleFile serves requests from a resolver primed by a tuple file. The
// identity filters the file's lines and is required on connect. A load
// failure keeps whatever was read before it.
func openTupleFile(spec TransportSpec, logger *log.Logger) *Client {
	r := resolver.New(
		resolver.WithDefaultMap(false),
		resolver.WithDefaultTranslate(true),
		resolver.WithIdent(spec.Ident),
		resolver.WithLogger(logger.WithPrefix("resolver")),
	)
	if err := r.LoadTupleFile(spec.Path, spec.Ident, false); err != nil {
		logger.Warn("cannot load tuple file", "file", spec.Path, "status", resolver.TupleStatus(err), "error", err)
	}
	return newDirectClient(spec, r, logger)
}

// openFDs wraps inherited descriptors. The standard streams are used but
// never closed by the client. A descriptor that is not open is an error.
func openFDs(spec TransportSpec, logger *log.Logger) (*Client, error) {
	if err := checkFD(spec.ReadFD); err != nil {
		return nil, err
	}
	if spec.WriteFD != spec.ReadFD {
		if err := checkFD(spec.WriteFD); err != nil {
			return nil, err
		}
	}

	rd := fdFile(spec.ReadFD, "mapper-in")
	wr := rd
	if spec.WriteFD != spec.ReadFD {
		wr = fdFile(spec.WriteFD, "mapper-out")
	}

	var closers []io.Closer
	if spec.ReadFD > 2 {
		closers = append(closers, rd)
	}
	if spec.WriteFD > 2 && spec.WriteFD != spec.ReadFD {
		closers = append(closers, wr)
	}
	return newPipedClient(spec, rd, wr, logger, closers...), nil
}

func fdFile(fd int, name string) *os.File {
	switch fd {
	case 0:
		return os.Stdin
	case 1:
		return os.Stdout
	case 2:
		return os.Stderr
	default:
		return os.NewFile(uintptr(fd), name)
	}
}

// spawn starts the mapper program with pipes on its stdin and stdout. Its
// stderr is shared with ours.
func spawn(spec TransportSpec, logger *log.Logger) (*Client, error) {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe to %s: %w", spec.Argv[0], err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe from %s: %w", spec.Argv[0], err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}

	// stdout is closed by Wait
	c := newPipedClient(spec, stdout, stdin, logger, stdin)
	c.cmd = cmd
	return c, nil
}

// handshake sends Connect and a repository query as one batch. Only a
// Connected answer to the first request lets the session proceed.
func (c *Client) handshake(invocation, agent string) error {
	resps, err := c.Cork().Connect(agent, c.spec.Ident).ModuleRepo().Uncork()
	if err != nil {
		return &HandshakeError{Invocation: invocation, Err: err}
	}
	if resps[0].Code != protocol.CodeConnected {
		return &HandshakeError{Invocation: invocation, Message: resps[0].Str}
	}
	if resps[1].Code == protocol.CodePathname {
		c.setRepositoryName(resps[1].Str)
	}
	return nil
}
