// SPDX-License-Identifier: MPL-2.0

package resolver

import "strings"

const (
	// DefaultSuffix is the CMI file extension used by default naming.
	DefaultSuffix = "pcm"

	// SupportedAgent is the only compiler identifier accepted by Connect.
	SupportedAgent = "clang"

	// DefaultRepo is the repository used by an ad-hoc in-process resolver.
	DefaultRepo = "pcm-cache"
)

// IsHeaderName reports whether name denotes a header unit rather than a
// module: header units are absolute or start with "./".
func IsHeaderName(name string) bool {
	return strings.HasPrefix(name, "/") || strings.HasPrefix(name, "./")
}

// CMIName computes the default artifact path for a module or header unit.
//
// Header units keep their path shape: an absolute name gains a leading ".",
// a leading "./" becomes ",/" and each "/../" component becomes "/,,/", so
// that the result stays inside the repository. Module names map dots to
// directory separators and partition colons to "-".
func CMIName(name, suffix string) string {
	var result string
	if IsHeaderName(name) {
		result = headerCMIName(name)
	} else {
		result = strings.NewReplacer(".", "/", ":", "-").Replace(name)
	}
	if suffix != "" {
		result += "." + suffix
	}
	return result
}

func headerCMIName(name string) string {
	var b []byte
	if strings.HasPrefix(name, "/") {
		b = append([]byte{'.'}, name...)
	} else {
		b = []byte(name)
		b[0] = ','
	}

	for ix := 1; ix+2 < len(b); ix++ {
		if b[ix-1] == '/' && b[ix] == '.' && b[ix+1] == '.' && b[ix+2] == '/' {
			b[ix] = ','
			b[ix+1] = ','
		}
	}
	return string(b)
}
