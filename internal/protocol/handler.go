// SPDX-License-Identifier: MPL-2.0

package protocol

import "sync"

const (
	// StateUnconnected is the session state before a successful Connect.
	StateUnconnected SessionState = iota
	// StateConnected is the session state after a successful Connect.
	StateConnected
)

type (
	// Handler answers the mapper message set. A resolver implements one
	// method per request kind; Dispatch routes requests to them.
	Handler interface {
		Connect(version uint, agent, ident string) Response
		ModuleRepo() Response
		ModuleExport(flags Flags, module string) Response
		ModuleImport(flags Flags, module string) Response
		IncludeTranslate(flags Flags, include string) Response
		ModuleCompiled(flags Flags, module string) Response
	}

	// SessionState is the connection state of one Session.
	SessionState int

	// Session tracks the handshake state of one client connection against a
	// Handler. A Session never returns to StateUnconnected once connected.
	Session struct {
		handler Handler
		mu      sync.Mutex
		state   SessionState
	}
)

// String returns a human-readable representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dispatch routes a single request to the matching Handler method.
// It does not enforce session state; see Session.Serve.
func Dispatch(h Handler, req Request) Response {
	switch req.Kind {
	case KindConnect:
		return h.Connect(req.Version, req.Agent, req.Ident)
	case KindModuleRepo:
		return h.ModuleRepo()
	case KindModuleExport:
		return h.ModuleExport(req.Flags, req.Name)
	case KindModuleImport:
		return h.ModuleImport(req.Flags, req.Name)
	case KindIncludeTranslate:
		return h.IncludeTranslate(req.Flags, req.Name)
	case KindModuleCompiled:
		return h.ModuleCompiled(req.Flags, req.Name)
	default:
		return ErrorResponse("unrecognized request")
	}
}

// NewSession creates an unconnected session over h.
func NewSession(h Handler) *Session {
	return &Session{handler: h}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serve answers a batch of requests in order, one response per request.
// Until a Connect succeeds, every other request is answered with an error.
func (s *Session) Serve(reqs []Request) []Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	resps := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		resps = append(resps, s.serveOne(req))
	}
	return resps
}

func (s *Session) serveOne(req Request) Response {
	if req.Kind == KindConnect {
		if s.state == StateConnected {
			return ErrorResponse("already connected")
		}
		resp := s.handler.Connect(req.Version, req.Agent, req.Ident)
		if resp.Code == CodeConnected {
			s.state = StateConnected
		}
		return resp
	}
	if s.state != StateConnected {
		return ErrorResponse("not connected")
	}
	return Dispatch(s.handler, req)
}
