// Package registry maps command aliases (the first whitespace-separated
// token of a command string) to the Module that services them.
package registry

import "strings"

// Kind classifies where a module's executable lives.
type Kind int

const (
	Internals Kind = iota
	Plugins
	UserModules
)

func (k Kind) String() string {
	switch k {
	case Internals:
		return "Internals"
	case Plugins:
		return "Plugins"
	case UserModules:
		return "UserModules"
	default:
		return "Unknown"
	}
}

// Module is a resolved registry entry. The zero Module is invalid:
// FullPath is empty.
type Module struct {
	Kind        Kind
	FullPath    string
	Version     string
	Upgradeable bool
	Blocking    bool
	Alias       string
}

// Valid reports whether the module resolved to a real executable path.
func (m Module) Valid() bool {
	return m.FullPath != ""
}

func (m Module) String() string {
	return m.Kind.String() + "(" + m.Alias + " -> " + m.FullPath + ")"
}

// Registry is a static alias -> Module table rooted under a base
// directory, matching the layout spec'd in §4.7.
type Registry struct {
	rootDir string
	modules map[string]Module
}

// New builds the registry with the three core aliases from spec §4.7,
// resolved under rootDir.
func New(rootDir string) *Registry {
	r := &Registry{
		rootDir: rootDir,
		modules: make(map[string]Module),
	}
	r.register(Module{
		Kind:        Internals,
		FullPath:    r.path("internals/restart"),
		Version:     "1.0",
		Upgradeable: false,
		Blocking:    true,
		Alias:       "restart",
	})
	r.register(Module{
		Kind:        Internals,
		FullPath:    r.path("internal/modulemng"),
		Version:     "1.0",
		Upgradeable: false,
		Blocking:    false,
		Alias:       "modulemng",
	})
	r.register(Module{
		Kind:        Plugins,
		FullPath:    r.path("plugins/osinfo"),
		Version:     "1.0",
		Upgradeable: true,
		Blocking:    false,
		Alias:       "osinfo",
	})
	return r
}

func (r *Registry) path(relative string) string {
	if r.rootDir == "" {
		return relative
	}
	return r.rootDir + "/" + relative
}

// register adds (or overrides) an entry. Exported as Register so
// callers embedding this agent can extend the table with extra
// UserModules plugins without forking the package.
func (r *Registry) register(m Module) {
	r.modules[m.Alias] = m
}

// Register adds m to the table, keyed by m.Alias.
func (r *Registry) Register(m Module) {
	r.register(m)
}

// Lookup resolves alias to its Module. Unknown aliases return the
// zero Module, which is invalid.
func (r *Registry) Lookup(alias string) Module {
	return r.modules[alias]
}

// AliasOf extracts the first whitespace-separated token of a command
// string, per the GLOSSARY's definition of "Alias".
func AliasOf(commandText string) string {
	fields := strings.Fields(commandText)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// LookupCommand resolves the Module for a raw command string in one
// step.
func (r *Registry) LookupCommand(commandText string) Module {
	return r.Lookup(AliasOf(commandText))
}
