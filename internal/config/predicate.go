package config

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/storebridge/internal/ir"
)

// CompilePredicate compiles an expr-lang boolean expression over the
// variables state and action, e.g. `action.type != "TICK" && state.ready`.
//
// A predicate that fails at run time allows the action: a broken gate
// never hides traffic.
func CompilePredicate(expression string) (Predicate, error) {
	if expression == "" {
		return nil, fmt.Errorf("predicate: expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("predicate %q: %w", expression, err)
	}
	return func(state ir.Value, action ir.Object) bool {
		return runPredicate(program, state, action)
	}, nil
}

func runPredicate(program *exprvm.Program, state ir.Value, action ir.Object) bool {
	out, err := exprlang.Run(program, map[string]any{
		"state":  ir.ToAny(state),
		"action": ir.ToAny(action),
	})
	if err != nil {
		return true
	}
	allowed, ok := out.(bool)
	return !ok || allowed
}
