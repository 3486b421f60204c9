// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

const (
	// TransportDefault is the ad-hoc in-process resolver.
	TransportDefault TransportKind = iota
	// TransportFDs talks over inherited file descriptors.
	TransportFDs
	// TransportSocket connects to a unix domain socket.
	TransportSocket
	// TransportProgram spawns a mapper and talks over its stdin and stdout.
	TransportProgram
	// TransportTCP connects to a TCP endpoint.
	TransportTCP
	// TransportTupleFile loads a tuple file into an in-process resolver.
	TransportTupleFile
)

type (
	// TransportKind selects how a client reaches its resolver.
	TransportKind int

	// TransportSpec is a parsed invocation descriptor. Only the fields
	// relevant to Kind are set.
	TransportSpec struct {
		Kind TransportKind

		// Ident is the identity presented on connect. For tuple files it is
		// also the line prefix filter and the identity the resolver expects.
		Ident string

		// ReadFD and WriteFD are the inherited descriptors (TransportFDs).
		ReadFD  int
		WriteFD int

		// Path is the socket path or the tuple file.
		Path string

		// Argv is the program and its arguments (TransportProgram).
		Argv []string

		// Host and Port address a TCP endpoint.
		Host string
		Port int
	}
)

// String returns the descriptor form of the transport kind.
func (k TransportKind) String() string {
	switch k {
	case TransportDefault:
		return "default"
	case TransportFDs:
		return "fds"
	case TransportSocket:
		return "socket"
	case TransportProgram:
		return "program"
	case TransportTCP:
		return "tcp"
	case TransportTupleFile:
		return "tuple-file"
	default:
		return "unknown"
	}
}

// ParseInvocation parses an invocation descriptor. A trailing "?ident"
// (split at the last "?") overrides ident. The descriptor grammar is:
//
//	""            in-process resolver with default naming
//	<N>M          read descriptor N, write descriptor M
//	<>  <>M  <N>  stdin/stdout, M both ways, N both ways
//	=path         unix domain socket
//	|prog args    spawned program, arguments split with shell word rules
//	host:port     TCP, when port is a non-zero decimal
//	file          tuple file
func ParseInvocation(desc, ident string) (TransportSpec, error) {
	name := desc
	if q := strings.LastIndexByte(name, '?'); q >= 0 {
		ident = name[q+1:]
		name = name[:q]
	}
	spec := TransportSpec{Ident: ident}

	if name == "" {
		spec.Kind = TransportDefault
		return spec, nil
	}

	switch name[0] {
	case '<':
		rd, wr, err := parseFDs(name[1:])
		if err != nil {
			return TransportSpec{}, &InvocationError{Invocation: desc, Reason: err.Error()}
		}
		spec.Kind = TransportFDs
		spec.ReadFD, spec.WriteFD = rd, wr
	case '=':
		if len(name) == 1 {
			return TransportSpec{}, &InvocationError{Invocation: desc, Reason: "missing socket path"}
		}
		spec.Kind = TransportSocket
		spec.Path = name[1:]
	case '|':
		argv, err := shell.Fields(name[1:], nil)
		if err != nil {
			return TransportSpec{}, &InvocationError{Invocation: desc, Reason: fmt.Sprintf("cannot split program arguments: %v", err)}
		}
		if len(argv) == 0 {
			return TransportSpec{}, &InvocationError{Invocation: desc, Reason: "missing program"}
		}
		spec.Kind = TransportProgram
		spec.Argv = argv
	default:
		if host, port, ok := splitHostPort(name); ok {
			spec.Kind = TransportTCP
			spec.Host, spec.Port = host, port
			return spec, nil
		}
		spec.Kind = TransportTupleFile
		spec.Path = name
	}
	return spec, nil
}

// parseFDs parses the text following "<".
func parseFDs(s string) (int, int, error) {
	from, rest := leadingDigits(s)
	if rest == "" || rest[0] != '>' {
		return 0, 0, fmt.Errorf("expected '>' after %q", "<"+from)
	}
	to, rest := leadingDigits(rest[1:])
	if rest != "" {
		return 0, 0, fmt.Errorf("unexpected %q after descriptors", rest)
	}

	switch {
	case from == "" && to == "":
		return 0, 1, nil
	case from == "":
		fd, err := strconv.Atoi(to)
		return fd, fd, err
	case to == "":
		fd, err := strconv.Atoi(from)
		return fd, fd, err
	default:
		rd, err := strconv.Atoi(from)
		if err != nil {
			return 0, 0, err
		}
		wr, err := strconv.Atoi(to)
		return rd, wr, err
	}
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// splitHostPort splits at the last ':' when the text after it is a non-zero
// decimal port. Brackets around an IPv6 host are removed.
func splitHostPort(name string) (string, int, bool) {
	colon := strings.LastIndexByte(name, ':')
	if colon < 0 {
		return "", 0, false
	}
	digits, rest := leadingDigits(name[colon+1:])
	if digits == "" || rest != "" {
		return "", 0, false
	}
	port, err := strconv.ParseUint(digits, 10, 16)
	if err != nil || port == 0 {
		return "", 0, false
	}
	host := name[:colon]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return host, int(port), true
}
