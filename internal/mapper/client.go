// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/protocol"
	"github.com/cxxmod/modmapper/internal/resolver"
)

type (
	// Client is a handshaken connection to a resolver. It is not safe for
	// concurrent use: a batch is written and its answers read before the
	// next batch starts.
	Client struct {
		spec TransportSpec
		repo string

		// direct channel
		session  *protocol.Session
		resolver *resolver.Resolver

		// piped channel
		enc     *protocol.Encoder
		dec     *protocol.Decoder
		closers []io.Closer
		cmd     *exec.Cmd

		closeOnce sync.Once
		closeErr  error

		logger *log.Logger
	}

	// Batch collects requests between Cork and Uncork. Answers come back in
	// submission order.
	Batch struct {
		c    *Client
		reqs []protocol.Request
	}
)

func newDirectClient(spec TransportSpec, r *resolver.Resolver, logger *log.Logger) *Client {
	return &Client{
		spec:     spec,
		session:  protocol.NewSession(r),
		resolver: r,
		logger:   logger,
	}
}

func newPipedClient(spec TransportSpec, rd io.Reader, wr io.Writer, logger *log.Logger, closers ...io.Closer) *Client {
	return &Client{
		spec:    spec,
		enc:     protocol.NewEncoder(wr),
		dec:     protocol.NewDecoder(rd),
		closers: closers,
		logger:  logger,
	}
}

// Transport returns the parsed descriptor this client was opened with.
func (c *Client) Transport() TransportSpec { return c.spec }

// IsDirect reports whether requests are answered by an in-process resolver.
func (c *Client) IsDirect() bool { return c.session != nil }


// Cork starts a batch.
func (c *Client) Cork() *Batch { return &Batch{c: c} }

// Connect adds a connect request to the batch.
func (b *Batch) Connect(agent, ident string) *Batch {
	return b.add(protocol.Connect(agent, ident))
}

// ModuleRepo adds a repository query to the batch.
func (b *Batch) ModuleRepo() *Batch { return b.add(protocol.ModuleRepo()) }

// ModuleExport adds an export query to the batch.
func (b *Batch) ModuleExport(name string, flags protocol.Flags) *Batch {
	return b.add(protocol.ModuleExport(name, flags))
}

// ModuleImport adds an import query to the batch.
func (b *Batch) ModuleImport(name string, flags protocol.Flags) *Batch {
	return b.add(protocol.ModuleImport(name, flags))
}

// IncludeTranslate adds an include translation query to the batch.
func (b *Batch) IncludeTranslate(include string, flags protocol.Flags) *Batch {
	return b.add(protocol.IncludeTranslate(include, flags))
}

// ModuleCompiled adds a compiled notification to the batch.
func (b *Batch) ModuleCompiled(name string, flags protocol.Flags) *Batch {
	return b.add(protocol.ModuleCompiled(name, flags))
}

func (b *Batch) add(req protocol.Request) *Batch {
	b.reqs = append(b.reqs, req)
	return b
}

// Len returns the number of requests in the batch.
func (b *Batch) Len() int { return len(b.reqs) }

// Uncork sends the batch and returns one response per request.
func (b *Batch) Uncork() ([]protocol.Response, error) {
	reqs := b.reqs
	b.reqs = nil
	return b.c.Exchange(reqs)
}

// Exchange sends reqs as one batch and reads their responses. An empty
// batch is a no-op.
func (c *Client) Exchange(reqs []protocol.Request) ([]protocol.Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if c.session != nil {
		return c.session.Serve(reqs), nil
	}

	if err := c.enc.WriteRequests(reqs); err != nil {
		return nil, fmt.Errorf("send to mapper: %w", err)
	}
	resps, err := c.dec.ReadResponses()
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, fmt.Errorf("read from mapper: %w", err)
	}
	if len(resps) != len(reqs) {
		return nil, fmt.Errorf("read from mapper: %d responses for %d requests", len(resps), len(reqs))
	}
	return resps, nil
}

func (c *Client) single(req protocol.Request) (protocol.Response, error) {
	resps, err := c.Exchange([]protocol.Request{req})
	if err != nil {
		return protocol.Response{}, err
	}
	return resps[0], nil
}

// ModuleRepo asks for the repository root.
func (c *Client) ModuleRepo() (protocol.Response, error) {
	return c.single(protocol.ModuleRepo())
}

// ModuleExport asks where name's CMI is to be written.
func (c *Client) ModuleExport(name string, flags protocol.Flags) (protocol.Response, error) {
	return c.single(protocol.ModuleExport(name, flags))
}

// ModuleImport asks where name's CMI can be read.
func (c *Client) ModuleImport(name string, flags protocol.Flags) (protocol.Response, error) {
	return c.single(protocol.ModuleImport(name, flags))
}

// IncludeTranslate asks whether include names a header unit.
func (c *Client) IncludeTranslate(include string, flags protocol.Flags) (protocol.Response, error) {
	return c.single(protocol.IncludeTranslate(include, flags))
}

// ModuleCompiled reports that name's CMI has been written.
func (c *Client) ModuleCompiled(name string, flags protocol.Flags) (protocol.Response, error) {
	return c.single(protocol.ModuleCompiled(name, flags))
}

// Close releases the channel exactly once. A direct client closes its
// resolver; a piped client closes its descriptors and, for a spawned
// program, waits for it and reports an abnormal exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close()
	})
	return c.closeErr
}

func (c *Client) close() error {
	if c.resolver != nil {
		return c.resolver.Close()
	}

	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.cmd != nil {
		if err := c.cmd.Wait(); err != nil {
			perr := &ProgramError{Program: strings.Join(c.spec.Argv, " "), Err: err}
			c.log().Warn("mapper program exited abnormally", "program", c.spec.Argv[0], "error", err)
			errs = append(errs, perr)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) log() *log.Logger {
	if c.logger != nil {
		return c.logger
	}
	return log.Default().WithPrefix("mapper")
}
