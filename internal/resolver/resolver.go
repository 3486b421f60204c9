// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/protocol"
)

// Protocol error messages answered by the resolver.
const (
	msgVersionMismatch = "version mismatch"
	msgBadAgent        = "only clang supported"
	msgBadIdent        = "bad ident"
	msgNoSuchModule    = "no such module"
)

var _ protocol.Handler = (*Resolver)(nil)

type (
	// Entry is one row of the mapping table. An entry with an empty Path is
	// known-missing: it was looked up or probed and has no artifact.
	Entry struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	}

	// Resolver owns the module mapping table and answers mapper requests.
	// It is safe for concurrent use; a mapper server shares one Resolver
	// between its connections.
	Resolver struct {
		mu sync.Mutex

		repo             string
		ident            string
		suffix           string
		mapping          map[string]string
		compiled         map[string]bool
		defaultMap       bool
		defaultTranslate bool

		// dir is the lazily-opened repository directory used for probes.
		dir    repoDir
		closed bool

		logger *log.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

// Present reports whether the entry resolves to an artifact path.
func (e Entry) Present() bool { return e.Path != "" }

// WithDefaultMap enables or disables synthesized names for unmapped
// export and import queries.
func WithDefaultMap(on bool) Option {
	return func(r *Resolver) { r.defaultMap = on }
}

// WithDefaultTranslate enables or disables filesystem probing for unmapped
// include translation queries.
func WithDefaultTranslate(on bool) Option {
	return func(r *Resolver) { r.defaultTranslate = on }
}

// WithRepo sets the repository root.
func WithRepo(repo string) Option {
	return func(r *Resolver) { r.repo = repo }
}

// WithIdent sets the identity a connecting client must present.
func WithIdent(ident string) Option {
	return func(r *Resolver) { r.ident = ident }
}

// WithSuffix overrides the CMI suffix used for default names.
func WithSuffix(suffix string) Option {
	return func(r *Resolver) { r.suffix = suffix }
}

// WithLogger sets the logger used for request traces.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver. By default, unmapped modules get default names
// and include translation does not probe the filesystem.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		suffix:     DefaultSuffix,
		mapping:    make(map[string]string),
		compiled:   make(map[string]bool),
		defaultMap: true,
		dir:        newRepoDir(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) log() *log.Logger {
	if r.logger != nil {
		return r.logger
	}
	return log.Default().WithPrefix("resolver")
}

// Close releases the repository directory handle. It is safe to call more
// than once.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.dir.close()
}

// SetRepo sets the repository root if none is set yet, or unconditionally
// when force is true. It reports whether the root was changed.
func (r *Resolver) SetRepo(repo string, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setRepoLocked(repo, force)
}

func (r *Resolver) setRepoLocked(repo string, force bool) bool {
	if !force && r.repo != "" {
		return false
	}
	r.repo = repo
	return true
}

// Repo returns the repository root.
func (r *Resolver) Repo() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repo
}

// AddMapping inserts a module to path mapping. A new name is always
// inserted; an existing one is only overwritten when force is true. It
// reports whether the table was changed.
func (r *Resolver) AddMapping(module, file string, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMappingLocked(module, file, force)
}

func (r *Resolver) addMappingLocked(module, file string, force bool) bool {
	if _, exists := r.mapping[module]; exists && !force {
		return false
	}
	r.mapping[module] = file
	return true
}

// Lookup returns the mapping entry for name, if any.
func (r *Resolver) Lookup(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.mapping[name]
	return Entry{Name: name, Path: path}, ok
}

// Entries returns a snapshot of the mapping table sorted by name.
func (r *Resolver) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.mapping))
	for name, path := range r.mapping {
		entries = append(entries, Entry{Name: name, Path: path})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Compiled reports whether module has been announced as compiled.
func (r *Resolver) Compiled(module string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.compiled[module]
}

// CMIName returns the default artifact name for a module or header unit
// using the resolver's suffix.
func (r *Resolver) CMIName(name string) string {
	return CMIName(name, r.suffix)
}

// --- protocol.Handler ---

// Connect accepts a client speaking a supported protocol version, as the
// supported agent, presenting the expected identity when one is configured.
func (r *Resolver) Connect(version uint, agent, ident string) protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case version == 0 || version > protocol.Version:
		return protocol.ErrorResponse(msgVersionMismatch)
	case agent != SupportedAgent:
		return protocol.ErrorResponse(msgBadAgent)
	case r.ident != "" && r.ident != ident:
		return protocol.ErrorResponse(msgBadIdent)
	default:
		return protocol.ConnectedResponse(SupportedAgent)
	}
}

// ModuleRepo answers the repository root, which may be empty.
func (r *Resolver) ModuleRepo() protocol.Response {
	return protocol.PathnameResponse(r.Repo())
}

// ModuleExport answers where module's CMI is to be written.
func (r *Resolver) ModuleExport(_ protocol.Flags, module string) protocol.Response {
	return r.cmiResponse(module)
}

// ModuleImport answers where module's CMI can be read.
func (r *Resolver) ModuleImport(_ protocol.Flags, module string) protocol.Response {
	return r.cmiResponse(module)
}

func (r *Resolver) cmiResponse(module string) protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.mapping[module]
	if !ok {
		if r.defaultMap {
			file = r.CMIName(module)
		}
		// an empty entry records that the module is unknown
		r.mapping[module] = file
	}

	if file == "" {
		r.log().Debug("cmi lookup failed", "module", module)
		return protocol.ErrorResponse(msgNoSuchModule)
	}
	r.log().Debug("cmi lookup", "module", module, "file", file)
	return protocol.PathnameResponse(file)
}

// IncludeTranslate answers the CMI of a header unit, or false when the
// include should be processed textually. Unmapped includes are probed on
// disk once, when default translation is enabled; the outcome is cached.
func (r *Resolver) IncludeTranslate(_ protocol.Flags, include string) protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.mapping[include]
	if !ok && r.defaultTranslate {
		if r.repo != "" && r.dir.state() == dirUnopened {
			if err := r.dir.open(r.repo); err != nil {
				r.log().Warn("cannot open repository", "repo", r.repo, "error", err)
			}
		}

		if r.repo == "" || r.dir.state() == dirOpen {
			file = r.CMIName(include)
			if !r.dir.isRegular(file, r.repo == "") {
				file = ""
			}
			r.mapping[include] = file
		}
	}

	if file == "" {
		r.log().Debug("include translate", "include", include, "result", false)
		return protocol.BoolResponse(false)
	}
	r.log().Debug("include translate", "include", include, "file", file)
	return protocol.PathnameResponse(file)
}

// ModuleCompiled records that module's CMI has been written. An unmapped
// module is entered under its default name; existing entries, including
// known-missing ones, are left as they are.
func (r *Resolver) ModuleCompiled(_ protocol.Flags, module string) protocol.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mapping[module]; !ok {
		r.mapping[module] = r.CMIName(module)
	}
	r.compiled[module] = true
	r.log().Debug("module compiled", "module", module, "file", r.mapping[module])
	return protocol.OKResponse()
}
