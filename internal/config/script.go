package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/roach88/storebridge/internal/ir"
)

// script is a compiled JavaScript function of (value, index). Values cross
// into the runtime as JSON so the function sees plain objects, and its
// result comes back the way JSON.stringify would write it.
//
// goja runtimes are not safe for concurrent use; calls are serialized.
type script struct {
	name string
	mu   sync.Mutex
	vm   *goja.Runtime
	fn   goja.Callable
}

// wrapScript adapts a user function so it takes and returns JSON text.
const wrapScript = `(function (fn) {
	if (typeof fn !== "function") {
		throw new TypeError("sanitizer must be a function");
	}
	return function (json, index) {
		var out = fn(JSON.parse(json), index);
		return out === undefined ? undefined : JSON.stringify(out);
	};
})(%s)`

func compileScript(name, source string) (*script, error) {
	if source == "" {
		return nil, fmt.Errorf("%s: script must not be empty", name)
	}
	program, err := goja.Compile(name, fmt.Sprintf(wrapScript, source), false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	vm := goja.New()
	v, err := vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s: script did not produce a function", name)
	}
	return &script{name: name, vm: vm, fn: fn}, nil
}

// call runs the script. On any failure the input is returned unchanged.
func (s *script) call(v ir.Value, index int) (ir.Value, error) {
	in, err := ir.MarshalValue(v)
	if err != nil {
		return v, fmt.Errorf("%s: %w", s.name, err)
	}

	s.mu.Lock()
	res, err := s.fn(goja.Undefined(), s.vm.ToValue(string(in)), s.vm.ToValue(index))
	var out string
	undefined := err == nil && goja.IsUndefined(res)
	if err == nil && !undefined {
		out = res.String()
	}
	s.mu.Unlock()

	if err != nil {
		return v, fmt.Errorf("%s: %w", s.name, err)
	}
	if undefined {
		return ir.Null{}, nil
	}
	parsed, err := ir.UnmarshalValue([]byte(out))
	if err != nil {
		return v, fmt.Errorf("%s: %w", s.name, err)
	}
	return parsed, nil
}

// CompileStateSanitizer compiles a JavaScript function expression such as
// `function (state) { delete state.token; return state; }`.
func CompileStateSanitizer(source string) (StateSanitizer, error) {
	s, err := compileScript("stateSanitizer", source)
	if err != nil {
		return nil, err
	}
	return func(state ir.Value, index int) ir.Value {
		out, err := s.call(state, index)
		if err != nil {
			return state
		}
		return out
	}, nil
}

// CompileActionSanitizer compiles a JavaScript function expression over
// (action, id). A result that is not an object leaves the action unchanged.
func CompileActionSanitizer(source string) (ActionSanitizer, error) {
	s, err := compileScript("actionSanitizer", source)
	if err != nil {
		return nil, err
	}
	return func(action ir.Object, id int) ir.Object {
		out, err := s.call(action, id)
		if err != nil {
			return action
		}
		obj, ok := out.(ir.Object)
		if !ok {
			return action
		}
		return obj
	}, nil
}

// CompileScripts fills the callable fields from their file sources. A
// callable already set is kept. All compile errors are returned together;
// callables that did compile are still set.
func (c *Config) CompileScripts() error {
	var errs []error
	if c.Predicate == nil && c.PredicateExpr != "" {
		p, err := CompilePredicate(c.PredicateExpr)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Predicate = p
		}
	}
	if c.StateSanitizer == nil && c.StateSanitizerScript != "" {
		s, err := CompileStateSanitizer(c.StateSanitizerScript)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.StateSanitizer = s
		}
	}
	if c.ActionSanitizer == nil && c.ActionSanitizerScript != "" {
		s, err := CompileActionSanitizer(c.ActionSanitizerScript)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.ActionSanitizer = s
		}
	}
	return errors.Join(errs...)
}
