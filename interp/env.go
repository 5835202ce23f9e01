package interp

import (
	"strings"

	"possh/expand"
)

// scopeEnviron is a stack of variable scopes: the global scope plus one
// pushed per function call for its "local" declarations. Lookup walks the
// stack top-down; Set without Local writes to the global scope directly
// (shell assignment default), matching how a plain "x=1" inside a function
// body still updates the caller's x unless "local x=1" was used.
type scopeEnviron struct {
	parent *scopeEnviron
	values map[string]expand.Variable
}

func newScope(parent *scopeEnviron) *scopeEnviron {
	return &scopeEnviron{parent: parent, values: make(map[string]expand.Variable)}
}

func (s *scopeEnviron) Get(name string) expand.Variable {
	for sc := s; sc != nil; sc = sc.parent {
		if vr, ok := sc.values[name]; ok {
			return vr
		}
	}
	return expand.Variable{}
}

// Set writes to the nearest scope already holding name (so a function-local
// shadow is updated in place), or to the current scope if name is new and
// the assignment is itself local, or to the global (bottom) scope otherwise.
func (s *scopeEnviron) Set(name string, vr expand.Variable) error {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.values[name]; ok {
			sc.values[name] = vr
			return nil
		}
	}
	if vr.Local {
		s.values[name] = vr
		return nil
	}
	global := s
	for global.parent != nil {
		global = global.parent
	}
	global.values[name] = vr
	return nil
}

func (s *scopeEnviron) Delete(name string) {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.values[name]; ok {
			delete(sc.values, name)
			return
		}
	}
}

func (s *scopeEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	seen := make(map[string]bool)
	for sc := s; sc != nil; sc = sc.parent {
		for name, vr := range sc.values {
			if seen[name] {
				continue
			}
			seen[name] = true
			if !fn(name, vr) {
				return
			}
		}
	}
}

// envFromList seeds the global scope from "name=value" pairs, such as
// os.Environ(), marking every entry exported.
func envFromList(list []string) *scopeEnviron {
	s := newScope(nil)
	for _, kv := range list {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		s.values[name] = expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: value}
	}
	return s
}

// execEnv renders every exported variable as "name=value" pairs suitable
// for os/exec.Cmd.Env.
func execEnv(env expand.Environ) []string {
	var list []string
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported && vr.IsSet() {
			list = append(list, name+"="+vr.String())
		}
		return true
	})
	return list
}
