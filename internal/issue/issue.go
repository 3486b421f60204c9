// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	MapperUnavailableId Id = iota + 1
	HandshakeFailedId
	InvalidInvocationId
	TupleFileNotFoundId
	TupleFileInvalidId
	ModuleNotFoundId
	ConfigLoadFailedId
	ServerStartFailedId
	ProgramFailedId
)

type MarkdownMsg string

// DocLink points at further reading: a CLI help topic or an external page.
type DocLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []DocLink   // must never be empty
	extLinks []DocLink   // external pages that might be useful
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []DocLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []DocLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue for the terminal using the named glamour style
// ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "\n- `" + string(link) + "`"
		}
		for _, link := range i.extLinks {
			md += "\n- <" + string(link) + ">"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	modulesDoc DocLink = "https://clang.llvm.org/docs/StandardCPlusPlusModules.html"

	mapperUnavailable = &Issue{
		id: MapperUnavailableId,
		mdMsg: `
# Module mapper unavailable

The mapper named by the invocation could not be reached, so the default
resolver was used instead. Modules get default names under the
` + "`pcm-cache`" + ` directory.

## Things you can try:
- Check that the mapper server is running (` + "`modmapper serve`" + `)
- For ` + "`=path`" + ` invocations, verify the socket path exists
- For ` + "`host:port`" + ` invocations, verify the address and that the port is open
- For ` + "`|program`" + ` invocations, verify the program is on your PATH
`,
		docLinks: []DocLink{"modmapper query --help"},
		extLinks: []DocLink{modulesDoc},
	}

	handshakeFailed = &Issue{
		id: HandshakeFailedId,
		mdMsg: `
# Mapper refused the connection

The mapper answered the initial ` + "`HELLO`" + ` with an error, or the
connection closed before it answered.

## Things you can try:
- Make sure client and server agree on the identity (` + "`?ident`" + ` suffix or ` + "`--ident`" + `)
- Check the server log for the rejected request
`,
		docLinks: []DocLink{"modmapper query --help", "modmapper serve --help"},
	}

	invalidInvocation = &Issue{
		id: InvalidInvocationId,
		mdMsg: `
# Invalid mapper invocation

The mapper invocation could not be parsed. Accepted forms are:

| Form | Meaning |
|------|---------|
| (empty) | built-in resolver |
| ` + "`<N>M`" + ` | read from fd N, write to fd M |
| ` + "`=path`" + ` | unix socket |
| ` + "`\\|prog args`" + ` | spawn a mapper program |
| ` + "`host:port`" + ` | TCP connection |
| anything else | tuple file |

Any form may end in ` + "`?ident`" + `.
`,
		docLinks: []DocLink{"modmapper query --help"},
	}

	tupleFileNotFound = &Issue{
		id: TupleFileNotFoundId,
		mdMsg: `
# Tuple file not found

The module mapping file does not exist or cannot be read.

## Things you can try:
- Check the path passed with ` + "`--tuple-file`" + ` or ` + "`resolver.tuple_file`" + `
- Generate a mapping with ` + "`modmapper dump --format tuple`" + `
`,
		docLinks: []DocLink{"modmapper check --help"},
	}

	tupleFileInvalid = &Issue{
		id: TupleFileInvalidId,
		mdMsg: `
# Tuple file has errors

A line of the mapping file could not be parsed. Mappings read before the
bad line are still in effect.

Each line holds ` + "`module path`" + `, ` + "`prefix module path`" + `
or a directive such as ` + "`$root dir`" + ` or ` + "`$default`" + `.

## Things you can try:
- Run ` + "`modmapper check <file>`" + ` to see the first bad line
`,
		docLinks: []DocLink{"modmapper check --help", "modmapper dump --help"},
	}

	moduleNotFound = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found

The mapper has no artifact for the module and default naming is off.

## Things you can try:
- Add the module to your tuple file
- Enable default naming with ` + "`$default`" + ` in the tuple file, or ` + "`--default-map`" + `
`,
		docLinks: []DocLink{"modmapper query --help"},
		extLinks: []DocLink{modulesDoc},
	}

	configLoadFailed = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration

The configuration file has a CUE syntax error or a value the schema does
not allow.

## Things you can try:
- Print the effective configuration with ` + "`modmapper config show`" + `
- Recreate the default file with ` + "`modmapper config init`" + `
- Check ` + "`MODMAPPER_*`" + ` environment variables and your ` + "`.env`" + ` file
`,
		docLinks: []DocLink{"modmapper config --help"},
	}

	serverStartFailed = &Issue{
		id: ServerStartFailedId,
		mdMsg: `
# Mapper server failed to start

The listener could not be created.

## Things you can try:
- Check that nothing else is listening on the address
- For unix sockets, make sure the directory exists and is writable
`,
		docLinks: []DocLink{"modmapper serve --help"},
	}

	programFailed = &Issue{
		id: ProgramFailedId,
		mdMsg: `
# Mapper program failed

The spawned mapper program exited with an error. Its standard error is
shown above this message.
`,
		docLinks: []DocLink{"modmapper query --help"},
	}

	issues = map[Id]*Issue{
		mapperUnavailable.Id(): mapperUnavailable,
		handshakeFailed.Id():   handshakeFailed,
		invalidInvocation.Id(): invalidInvocation,
		tupleFileNotFound.Id(): tupleFileNotFound,
		tupleFileInvalid.Id():  tupleFileInvalid,
		moduleNotFound.Id():    moduleNotFound,
		configLoadFailed.Id():  configLoadFailed,
		serverStartFailed.Id(): serverStartFailed,
		programFailed.Id():     programFailed,
	}
)

// Values returns every catalog issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
