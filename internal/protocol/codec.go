// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// continuation terminates every line of a batch except the last.
	continuation = ";"

	hexDigits = "0123456789abcdef"
)

// kindUnknown marks a decoded request whose verb is not in the message set.
// Dispatch answers it with an error response.
const kindUnknown Kind = -1

// ErrMalformedMessage is the sentinel error wrapped by DecodeError.
var ErrMalformedMessage = errors.New("malformed message")

type (
	// DecodeError is returned when a line cannot be decoded into a message.
	DecodeError struct {
		Line   string
		Reason string
	}

	// Encoder writes batches of messages to a byte stream.
	Encoder struct {
		w *bufio.Writer
	}

	// Decoder reads batches of messages from a byte stream.
	Decoder struct {
		r *bufio.Reader
	}
)

// Error implements the error interface for DecodeError.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed message %q: %s", e.Line, e.Reason)
}

// Unwrap returns ErrMalformedMessage for errors.Is() compatibility.
func (e *DecodeError) Unwrap() error { return ErrMalformedMessage }

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// WriteRequests writes reqs as one batch and flushes the stream.
func (e *Encoder) WriteRequests(reqs []Request) error {
	lines := make([][]string, 0, len(reqs))
	for _, req := range reqs {
		words, err := requestWords(req)
		if err != nil {
			return err
		}
		lines = append(lines, words)
	}
	return e.writeBatch(lines)
}

// WriteResponses writes resps as one batch and flushes the stream.
func (e *Encoder) WriteResponses(resps []Response) error {
	lines := make([][]string, 0, len(resps))
	for _, resp := range resps {
		words, err := responseWords(resp)
		if err != nil {
			return err
		}
		lines = append(lines, words)
	}
	return e.writeBatch(lines)
}

func (e *Encoder) writeBatch(lines [][]string) error {
	for i, words := range lines {
		for j, word := range words {
			if j > 0 {
				_ = e.w.WriteByte(' ')
			}
			_, _ = e.w.WriteString(QuoteWord(word))
		}
		if i < len(lines)-1 {
			_, _ = e.w.WriteString(" " + continuation)
		}
		_ = e.w.WriteByte('\n')
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

// ReadRequests reads one batch of requests. Unknown verbs decode to a
// request that Dispatch rejects, so the response count still matches.
// It returns io.EOF when the stream ends cleanly between batches.
func (d *Decoder) ReadRequests() ([]Request, error) {
	lines, err := d.readBatch()
	if err != nil {
		return nil, err
	}
	reqs := make([]Request, 0, len(lines))
	for _, words := range lines {
		reqs = append(reqs, parseRequest(words))
	}
	return reqs, nil
}

// ReadResponses reads one batch of responses.
func (d *Decoder) ReadResponses() ([]Response, error) {
	lines, err := d.readBatch()
	if err != nil {
		return nil, err
	}
	resps := make([]Response, 0, len(lines))
	for _, words := range lines {
		resp, err := parseResponse(words)
		if err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}
	return resps, nil
}

func (d *Decoder) readBatch() ([][]string, error) {
	var lines [][]string
	for {
		raw, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read batch: %w", err)
		}
		if errors.Is(err, io.EOF) && raw == "" {
			if len(lines) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read batch: %w", io.ErrUnexpectedEOF)
		}
		line := strings.TrimRight(raw, "\r\n")
		words, more, werr := SplitWords(line)
		if werr != nil {
			return nil, werr
		}
		if len(words) == 0 && more {
			return nil, &DecodeError{Line: line, Reason: "empty message"}
		}
		if len(words) == 0 {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read batch: %w", io.ErrUnexpectedEOF)
			}
			// blank lines between messages are ignored
			continue
		}
		lines = append(lines, words)
		if !more {
			return lines, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read batch: %w", io.ErrUnexpectedEOF)
		}
	}
}

func requestWords(req Request) ([]string, error) {
	if err := req.Kind.Validate(); err != nil {
		return nil, err
	}
	words := []string{req.Kind.String()}
	switch req.Kind {
	case KindConnect:
		words = append(words, strconv.FormatUint(uint64(req.Version), 10), req.Agent)
		if req.Ident != "" {
			words = append(words, req.Ident)
		}
	case KindModuleRepo:
	default:
		words = append(words, req.Name)
		if req.Flags != FlagNone {
			words = append(words, strconv.FormatUint(uint64(req.Flags), 10))
		}
	}
	return words, nil
}

func responseWords(resp Response) ([]string, error) {
	switch resp.Code {
	case CodeConnected:
		return []string{"HELLO", strconv.FormatUint(uint64(resp.Version), 10), resp.Str}, nil
	case CodePathname:
		return []string{"PATHNAME", resp.Str}, nil
	case CodeBool:
		if resp.Bool {
			return []string{"BOOL", "TRUE"}, nil
		}
		return []string{"BOOL", "FALSE"}, nil
	case CodeOK:
		return []string{"OK"}, nil
	case CodeError:
		return []string{"ERROR", resp.Str}, nil
	default:
		return nil, &InvalidCodeError{Value: resp.Code}
	}
}

func parseRequest(words []string) Request {
	arg := func(i int) string {
		if i < len(words) {
			return words[i]
		}
		return ""
	}

	switch words[0] {
	case "HELLO":
		version, err := strconv.ParseUint(arg(1), 10, 32)
		if err != nil {
			// a zero version is rejected by the handler
			version = 0
		}
		return Request{Kind: KindConnect, Version: uint(version), Agent: arg(2), Ident: arg(3)}
	case "MODULE-REPO":
		return Request{Kind: KindModuleRepo}
	case "MODULE-EXPORT", "MODULE-IMPORT", "INCLUDE-TRANSLATE", "MODULE-COMPILED":
		req := Request{Kind: kindForVerb(words[0]), Name: arg(1)}
		if f := arg(2); f != "" {
			if flags, err := strconv.ParseUint(f, 10, 32); err == nil {
				req.Flags = Flags(flags)
			}
		}
		return req
	default:
		return Request{Kind: kindUnknown, Name: words[0]}
	}
}

func kindForVerb(verb string) Kind {
	switch verb {
	case "MODULE-EXPORT":
		return KindModuleExport
	case "MODULE-IMPORT":
		return KindModuleImport
	case "INCLUDE-TRANSLATE":
		return KindIncludeTranslate
	default:
		return KindModuleCompiled
	}
}

func parseResponse(words []string) (Response, error) {
	line := strings.Join(words, " ")
	switch words[0] {
	case "HELLO":
		if len(words) < 3 {
			return Response{}, &DecodeError{Line: line, Reason: "HELLO needs a version and an agent"}
		}
		version, err := strconv.ParseUint(words[1], 10, 32)
		if err != nil {
			return Response{}, &DecodeError{Line: line, Reason: "bad version"}
		}
		return Response{Code: CodeConnected, Version: uint(version), Str: words[2]}, nil
	case "PATHNAME":
		if len(words) != 2 {
			return Response{}, &DecodeError{Line: line, Reason: "PATHNAME needs one path"}
		}
		return PathnameResponse(words[1]), nil
	case "BOOL":
		if len(words) != 2 {
			return Response{}, &DecodeError{Line: line, Reason: "BOOL needs one value"}
		}
		switch words[1] {
		case "TRUE":
			return BoolResponse(true), nil
		case "FALSE":
			return BoolResponse(false), nil
		default:
			return Response{}, &DecodeError{Line: line, Reason: "BOOL value must be TRUE or FALSE"}
		}
	case "OK":
		return OKResponse(), nil
	case "ERROR":
		return ErrorResponse(strings.Join(words[1:], " ")), nil
	default:
		return Response{}, &DecodeError{Line: line, Reason: "unknown response"}
	}
}

// QuoteWord renders one word for the wire. Words made only of safe
// characters are written bare; everything else is single-quoted.
func QuoteWord(word string) string {
	if word != "" && isBareWord(word) {
		return word
	}

	var sb strings.Builder
	sb.Grow(len(word) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(word); i++ {
		c := word[i]
		switch {
		case c == '\\' || c == '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7f:
			sb.WriteByte('\\')
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0xf])
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

// SplitWords splits a wire line into unquoted words. The second result
// reports whether the line ends with the batch continuation marker.
func SplitWords(line string) ([]string, bool, error) {
	var words []string
	for i := 0; i < len(line); {
		c := line[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if c != '\'' {
			start := i
			for i < len(line) && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			words = append(words, line[start:i])
			continue
		}

		var sb strings.Builder
		i++
		closed := false
		for i < len(line) {
			c = line[i]
			if c == '\'' {
				closed = true
				i++
				break
			}
			if c != '\\' {
				sb.WriteByte(c)
				i++
				continue
			}
			if i+1 >= len(line) {
				return nil, false, &DecodeError{Line: line, Reason: "dangling escape"}
			}
			switch e := line[i+1]; e {
			case 'n':
				sb.WriteByte('\n')
				i += 2
			case 't':
				sb.WriteByte('\t')
				i += 2
			case '\\', '\'':
				sb.WriteByte(e)
				i += 2
			default:
				if i+2 >= len(line) {
					return nil, false, &DecodeError{Line: line, Reason: "short hex escape"}
				}
				v, err := strconv.ParseUint(line[i+1:i+3], 16, 8)
				if err != nil {
					return nil, false, &DecodeError{Line: line, Reason: "bad hex escape"}
				}
				sb.WriteByte(byte(v))
				i += 3
			}
		}
		if !closed {
			return nil, false, &DecodeError{Line: line, Reason: "unterminated quote"}
		}
		// a quoted word is never mistaken for the continuation marker
		words = append(words, sb.String())
		if i < len(line) && line[i] != ' ' && line[i] != '\t' {
			return nil, false, &DecodeError{Line: line, Reason: "text after closing quote"}
		}
	}

	more := false
	if n := len(words); n > 0 && words[n-1] == continuation && bareContinuation(line) {
		words = words[:n-1]
		more = true
	}
	return words, more, nil
}

func bareContinuation(line string) bool {
	trimmed := strings.TrimRight(line, " \t")
	return strings.HasSuffix(trimmed, continuation) && !strings.HasSuffix(trimmed, "'"+continuation+"'")
}

func isBareWord(word string) bool {
	for i := 0; i < len(word); i++ {
		c := word[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("-+_/%.:@,", c) >= 0:
		default:
			return false
		}
	}
	return true
}
