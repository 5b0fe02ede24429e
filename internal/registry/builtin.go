package registry

import (
	_ "embed"
	"sync"
)

//go:embed builtin.yaml
var builtinYAML []byte

var (
	builtin     *Static
	builtinOnce sync.Once
)

// Builtin returns the provider documenting the tasks built into the language.
func Builtin() *Static {
	builtinOnce.Do(func() {
		c, err := ParseCatalog(builtinYAML)
		if err != nil {
			panic(err)
		}
		builtin, err = c.Provider()
		if err != nil {
			panic(err)
		}
	})
	return builtin
}

// IsBuiltinTask reports whether name is a task of the language itself.
func IsBuiltinTask(name string) bool {
	switch name {
	case "path", "print", "abort", "include", "var", "static", "global", "sequence", "defaults":
		return true
	}
	return false
}
