// SPDX-License-Identifier: MPL-2.0

package protocol

import (
	"errors"
	"fmt"
)

const (
	// Version is the newest protocol version spoken by this implementation.
	Version uint = 1

	// FlagNone requests default handling.
	FlagNone Flags = 0
	// FlagNameOnly asks only for the name, without side effects on the mapper.
	FlagNameOnly Flags = 1 << 0
)

const (
	// KindConnect opens a session (HELLO).
	KindConnect Kind = iota
	// KindModuleRepo asks for the repository root.
	KindModuleRepo
	// KindModuleExport asks where an exported module's CMI is to be written.
	KindModuleExport
	// KindModuleImport asks where an imported module's CMI can be read.
	KindModuleImport
	// KindIncludeTranslate asks whether an include names a header unit.
	KindIncludeTranslate
	// KindModuleCompiled notifies that a module's CMI now exists.
	KindModuleCompiled
)

const (
	// CodeConnected answers a successful Connect.
	CodeConnected Code = iota
	// CodePathname carries a filesystem path.
	CodePathname
	// CodeBool carries a boolean.
	CodeBool
	// CodeOK carries no payload.
	CodeOK
	// CodeError carries a human-readable message.
	CodeError
)

var (
	// ErrInvalidKind is returned when a Kind value is not one of the defined request kinds.
	ErrInvalidKind = errors.New("invalid request kind")

	// ErrInvalidCode is returned when a Code value is not one of the defined response codes.
	ErrInvalidCode = errors.New("invalid response code")
)

type (
	// Kind identifies a request in the fixed message set.
	Kind int

	// Code identifies the shape of a response.
	Code int

	// Flags modify export, import, translate and compiled requests.
	Flags uint

	// InvalidKindError is returned when a Kind value is not recognized.
	// It wraps ErrInvalidKind for errors.Is() compatibility.
	InvalidKindError struct {
		Value Kind
	}

	// InvalidCodeError is returned when a Code value is not recognized.
	// It wraps ErrInvalidCode for errors.Is() compatibility.
	InvalidCodeError struct {
		Value Code
	}

	// Request is one message sent from a compiler to a resolver.
	// Only the fields relevant to Kind are meaningful.
	Request struct {
		Kind Kind
		// Version, Agent and Ident are used by KindConnect.
		Version uint
		Agent   string
		Ident   string
		// Flags and Name are used by the module and include queries.
		Flags Flags
		Name  string
	}

	// Response is one message answered by a resolver.
	Response struct {
		Code Code
		// Str holds the agent (Connected), path (Pathname) or message (Error).
		Str string
		// Bool holds the CodeBool payload.
		Bool bool
		// Version is the peer's protocol version (Connected only).
		Version uint
	}
)

// String returns the wire verb for the request kind.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "HELLO"
	case KindModuleRepo:
		return "MODULE-REPO"
	case KindModuleExport:
		return "MODULE-EXPORT"
	case KindModuleImport:
		return "MODULE-IMPORT"
	case KindIncludeTranslate:
		return "INCLUDE-TRANSLATE"
	case KindModuleCompiled:
		return "MODULE-COMPILED"
	default:
		return "UNKNOWN"
	}
}

// Validate returns nil if the Kind is one of the defined request kinds,
// or an error wrapping ErrInvalidKind if it is not.
func (k Kind) Validate() error {
	switch k {
	case KindConnect, KindModuleRepo, KindModuleExport, KindModuleImport,
		KindIncludeTranslate, KindModuleCompiled:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// String returns a human-readable name for the response code.
func (c Code) String() string {
	switch c {
	case CodeConnected:
		return "connected"
	case CodePathname:
		return "pathname"
	case CodeBool:
		return "bool"
	case CodeOK:
		return "ok"
	case CodeError:
		return "error"
	default:
		return "unknown"
	}
}

// Validate returns nil if the Code is one of the defined response codes,
// or an error wrapping ErrInvalidCode if it is not.
func (c Code) Validate() error {
	switch c {
	case CodeConnected, CodePathname, CodeBool, CodeOK, CodeError:
		return nil
	default:
		return &InvalidCodeError{Value: c}
	}
}

// Error implements the error interface for InvalidKindError.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid request kind %d", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Error implements the error interface for InvalidCodeError.
func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid response code %d", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }

// --- Request constructors ---

// Connect builds the session-opening request for the current protocol version.
func Connect(agent, ident string) Request {
	return Request{Kind: KindConnect, Version: Version, Agent: agent, Ident: ident}
}

// ModuleRepo builds a repository root query.
func ModuleRepo() Request {
	return Request{Kind: KindModuleRepo}
}

// ModuleExport builds an export query for a module.
func ModuleExport(module string, flags Flags) Request {
	return Request{Kind: KindModuleExport, Name: module, Flags: flags}
}

// ModuleImport builds an import query for a module.
func ModuleImport(module string, flags Flags) Request {
	return Request{Kind: KindModuleImport, Name: module, Flags: flags}
}

// IncludeTranslate builds an include-translation query.
func IncludeTranslate(include string, flags Flags) Request {
	return Request{Kind: KindIncludeTranslate, Name: include, Flags: flags}
}

// ModuleCompiled builds a compiled notification for a module.
func ModuleCompiled(module string, flags Flags) Request {
	return Request{Kind: KindModuleCompiled, Name: module, Flags: flags}
}

// --- Response constructors ---

// ConnectedResponse answers a successful Connect.
func ConnectedResponse(agent string) Response {
	return Response{Code: CodeConnected, Str: agent, Version: Version}
}

// PathnameResponse answers with a path (possibly empty).
func PathnameResponse(path string) Response {
	return Response{Code: CodePathname, Str: path}
}

// BoolResponse answers with a boolean.
func BoolResponse(b bool) Response {
	return Response{Code: CodeBool, Bool: b}
}

// OKResponse answers with no payload.
func OKResponse() Response {
	return Response{Code: CodeOK}
}

// ErrorResponse answers with a failure message.
func ErrorResponse(msg string) Response {
	return Response{Code: CodeError, Str: msg}
}

// IsError reports whether the response is an Error.
func (r Response) IsError() bool { return r.Code == CodeError }

// String renders the response for logs.
func (r Response) String() string {
	switch r.Code {
	case CodeConnected:
		return fmt.Sprintf("connected %s v%d", r.Str, r.Version)
	case CodePathname:
		return fmt.Sprintf("pathname %q", r.Str)
	case CodeBool:
		return fmt.Sprintf("bool %t", r.Bool)
	case CodeOK:
		return "ok"
	case CodeError:
		return fmt.Sprintf("error %q", r.Str)
	default:
		return r.Code.String()
	}
}
