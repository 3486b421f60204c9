// SPDX-License-Identifier: MPL-2.0

//go:build unix

package mapper

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cxxmod/modmapper/internal/resolver"
	"github.com/cxxmod/modmapper/internal/testutil"
)

func TestOpen_FileDescriptors(t *testing.T) {
	t.Parallel()

	// the client owns duplicates so closing it leaves the test pipes alone
	clientIn, peerOut, err := os.Pipe()
	require.NoError(t, err)
	peerIn, clientOut, err := os.Pipe()
	require.NoError(t, err)

	rfd, err := unix.Dup(int(clientIn.Fd()))
	require.NoError(t, err)
	wfd, err := unix.Dup(int(clientOut.Fd()))
	require.NoError(t, err)
	testutil.MustClose(t, clientIn)
	testutil.MustClose(t, clientOut)

	done := testutil.ServePeer(peerIn, peerOut, resolver.New(resolver.WithRepo("fdrepo"), resolver.WithLogger(quietLogger())))

	c, err := Open(context.Background(), fmt.Sprintf("<%d>%d", rfd, wfd), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, TransportFDs, c.Transport().Kind)
	assert.Equal(t, "fdrepo", c.Repo())

	got, err := c.CMINameForFile("x")
	require.NoError(t, err)
	assert.Equal(t, "fdrepo/x.pcm", got)

	require.NoError(t, c.Close())
	<-done
	testutil.MustClose(t, peerIn)
	testutil.MustClose(t, peerOut)
}

func TestOpen_ClosedDescriptorsFallBack(t *testing.T) {
	t.Parallel()

	var closed []int
	for fd := 999; fd > 900 && len(closed) < 2; fd-- {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
			closed = append(closed, fd)
		}
	}
	if len(closed) < 2 {
		t.Skip("no unused descriptor numbers available")
	}

	for _, invocation := range []string{
		fmt.Sprintf("<%d>%d", closed[0], closed[1]),
		fmt.Sprintf("<%d>", closed[0]),
		fmt.Sprintf("<>%d", closed[1]),
	} {
		c, err := Open(context.Background(), invocation, WithLogger(quietLogger()))
		require.NoError(t, err, invocation)
		assert.Equal(t, TransportDefault, c.Transport().Kind, invocation)
		assert.Equal(t, resolver.DefaultRepo, c.Repo(), invocation)
		testutil.MustClose(t, c)
	}
}
