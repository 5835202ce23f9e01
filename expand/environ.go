// Package expand implements word expansion: brace, tilde, parameter,
// command, arithmetic, word-splitting and pathname expansion, applied in
// that order to produce argv-ready strings from an AST Word.
package expand

import (
	"cmp"
	"slices"
	"strings"
)

// Environ is the read side of a shell's environment: fetch a variable by
// name, or iterate over all currently set ones.
type Environ interface {
	Get(name string) Variable
	Each(func(name string, vr Variable) bool)
}

// WriteEnviron extends Environ with mutation, used by assignment and by
// builtins like export/readonly/unset.
type WriteEnviron interface {
	Environ
	Set(name string, vr Variable) error
}

// ValueKind describes which of a Variable's value fields is meaningful.
type ValueKind uint8

const (
	Unknown ValueKind = iota
	String
	NameRef
	Indexed
	Associative
)

// Variable is a shell variable: a value plus the attributes bash tracks
// per-name (exported, readonly, local-to-a-function-scope).
type Variable struct {
	Set bool

	Local    bool
	Exported bool
	ReadOnly bool

	Kind ValueKind

	Str string
	List []string
	Map  map[string]string
}

func (v Variable) IsSet() bool { return v.Set }

func (v Variable) Declared() bool {
	return v.Set || v.Local || v.Exported || v.ReadOnly || v.Kind != Unknown
}

// String returns the variable's value as a scalar; for arrays this is
// element zero, matching how bash's $name (no subscript) behaves.
func (v Variable) String() string {
	switch v.Kind {
	case String, NameRef:
		return v.Str
	case Indexed:
		if len(v.List) > 0 {
			return v.List[0]
		}
	}
	return ""
}

const maxNameRefDepth = 100

// Resolve follows nameref indirection (declare -n) up to a fixed depth,
// guarding against reference loops.
func (v Variable) Resolve(env Environ) (string, Variable) {
	name := ""
	for i := 0; i < maxNameRefDepth; i++ {
		if v.Kind != NameRef {
			return name, v
		}
		name = v.Str
		v = env.Get(name)
	}
	return name, Variable{}
}

// ListEnviron builds an Environ from "name=value" pairs, such as the
// process's os.Environ(); all entries are marked exported, matching how a
// child process's inherited environment behaves.
func ListEnviron(pairs ...string) Environ {
	list := slices.Clone(pairs)
	slices.SortStableFunc(list, func(a, b string) int {
		return strings.Compare(nameOf(a), nameOf(b))
	})
	last := ""
	for i := 0; i < len(list); {
		name, _, ok := strings.Cut(list[i], "=")
		if name == "" || !ok {
			list = slices.Delete(list, i, i+1)
			continue
		}
		if last == name {
			list = slices.Delete(list, i-1, i)
			continue
		}
		last = name
		i++
	}
	return listEnviron(list)
}

func nameOf(s string) string {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i]
	}
	return s
}

type listEnviron []string

func (l listEnviron) Get(name string) Variable {
	i, ok := slices.BinarySearchFunc(l, name, func(entry, name string) int {
		en := nameOf(entry)
		if c := cmp.Compare(en, name); c != 0 {
			return c
		}
		return 0
	})
	if ok {
		_, val, _ := strings.Cut(l[i], "=")
		return Variable{Set: true, Exported: true, Kind: String, Str: val}
	}
	return Variable{}
}

func (l listEnviron) Each(fn func(name string, vr Variable) bool) {
	for _, pair := range l {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if !fn(name, Variable{Set: true, Exported: true, Kind: String, Str: value}) {
			return
		}
	}
}
