package execute

import "fmt"

// Func is a callable that a function action can resolve to. Parameters are
// the placeholder bindings extracted from the spoken phrase.
type Func func(params map[string]string) (string, error)

// Registry maps (module, function) pairs to callables. It is populated
// explicitly at startup; configuration names are only ever looked up here,
// never evaluated, so a config file cannot cause arbitrary code to run.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(module, function string, fn Func) {
	r.funcs[key(module, function)] = fn
}

func (r *Registry) Resolve(module, function string) (Func, bool) {
	fn, ok := r.funcs[key(module, function)]
	return fn, ok
}

func key(module, function string) string {
	if module == "" {
		module = DefaultModule
	}
	return fmt.Sprintf("%s.%s", module, function)
}
