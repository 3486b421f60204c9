// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"

	"github.com/cxxmod/modmapper/internal/protocol"
)

// ServePeer answers request batches read from r with a session over h,
// writing the responses to w, until r fails or reaches EOF. It runs in a
// goroutine; the returned channel is closed when the peer stops.
func ServePeer(r io.Reader, w io.Writer, h protocol.Handler) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		session := protocol.NewSession(h)
		dec := protocol.NewDecoder(r)
		enc := protocol.NewEncoder(w)
		for {
			reqs, err := dec.ReadRequests()
			if err != nil {
				return
			}
			if err := enc.WriteResponses(session.Serve(reqs)); err != nil {
				return
			}
		}
	}()
	return done
}
