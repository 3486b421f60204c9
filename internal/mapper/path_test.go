// SPDX-License-Identifier: MPL-2.0

package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetRepositoryName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{".", ""},
		{"out", "out"},
		{"out/", "out"},
		{"out//", "out/"},
		{"/", "/"},
		{"/abs/cache/", "/abs/cache"},
	}
	for _, tt := range tests {
		c := &Client{}
		c.setRepositoryName(tt.in)
		assert.Equal(t, tt.want, c.Repo(), "input %q", tt.in)
	}
}

func TestMaybeAddRepoPrefix(t *testing.T) {
	t.Parallel()

	withRepo := &Client{repo: "out"}
	assert.Equal(t, "out/mod.pcm", withRepo.MaybeAddRepoPrefix("mod.pcm"))
	assert.Equal(t, "out/,/a.h.pcm", withRepo.MaybeAddRepoPrefix("./,/a.h.pcm"))
	assert.Equal(t, "/abs/mod.pcm", withRepo.MaybeAddRepoPrefix("/abs/mod.pcm"))
	assert.Equal(t, "out/mod.pcm", withRepo.MaybeAddRepoPrefix("././mod.pcm"))

	root := &Client{}
	root.setRepositoryName("/")
	assert.Equal(t, "/mod.pcm", root.MaybeAddRepoPrefix("mod.pcm"))
	assert.Equal(t, "/mod.pcm", root.MaybeAddRepoPrefix("./mod.pcm"))

	doubled := &Client{}
	doubled.setRepositoryName("out//")
	assert.Equal(t, "out/mod.pcm", doubled.MaybeAddRepoPrefix("mod.pcm"))

	noRepo := &Client{}
	assert.Equal(t, "mod.pcm", noRepo.MaybeAddRepoPrefix("mod.pcm"))
	assert.Equal(t, "./mod.pcm", noRepo.MaybeAddRepoPrefix("./mod.pcm"))
}

func TestCanonicalizeHeaderName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/usr/include/vector", "/usr/include/vector"},
		{"./foo.h", "./foo.h"},
		{"./", "././"},
		{"foo.h", "./foo.h"},
		{"../foo.h", "./../foo.h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalizeHeaderName(tt.in), "input %q", tt.in)
	}
}
