package filter

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storebridge/internal/ir"
)

func quietEngine(global Global) *Engine {
	return NewEngine(global, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestIsFiltered_DenylistPrecedence(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Denylist: "FOO"}

	assert.True(t, e.IsFiltered(ir.NewAction("FOO_BAR"), local))
	assert.False(t, e.IsFiltered(ir.NewAction("BAZ"), local))
}

func TestIsFiltered_AllowlistPrecedence(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Allowlist: "FOO"}

	assert.False(t, e.IsFiltered(ir.NewAction("FOO_BAR"), local))
	assert.True(t, e.IsFiltered(ir.NewAction("BAZ"), local))
}

func TestIsFiltered_BothListsIndependentGates(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Allowlist: "^USER_", Denylist: "_SECRET$"}

	tests := []struct {
		actionType string
		filtered   bool
		reason     Reason
	}{
		{"USER_LOGIN", false, ReasonObservable},
		{"USER_SECRET", true, ReasonDenylistMatch},
		{"CART_ADD", true, ReasonAllowlistMiss},
		{"CART_SECRET", true, ReasonAllowlistMiss},
	}

	for _, tt := range tests {
		t.Run(tt.actionType, func(t *testing.T) {
			d := e.Explain(ir.NewAction(tt.actionType), local)
			assert.Equal(t, tt.filtered, d.Filtered)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestIsFiltered_Deterministic(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Allowlist: "A|B", Denylist: "B2"}
	actions := []string{"A", "B", "B2", "C", ""}

	for _, a := range actions {
		first := e.IsFiltered(ir.NewAction(a), local)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, e.IsFiltered(ir.NewAction(a), local), "action %q", a)
		}
	}
}

func TestNoFiltersApplied(t *testing.T) {
	e := quietEngine(Global{})
	assert.True(t, e.NoFiltersApplied(nil))
	assert.False(t, e.NoFiltersApplied(&LocalFilter{}))

	off := quietEngine(Global{State: DoNotFilter, Denylist: "X"})
	assert.True(t, off.NoFiltersApplied(nil), "DO_NOT_FILTER disables the ambient lists")

	on := quietEngine(Global{State: DenylistSpecific, Denylist: "X"})
	assert.False(t, on.NoFiltersApplied(nil))

	var nilEngine *Engine
	assert.True(t, nilEngine.NoFiltersApplied(nil))
}

func TestIsFiltered_NoFilterFastPath(t *testing.T) {
	e := quietEngine(Global{})
	for _, a := range []ir.Object{
		ir.NewAction("ANYTHING"),
		{"type": ir.Int(1)},
		{},
	} {
		assert.False(t, e.IsFiltered(a, nil))
	}
	assert.Equal(t, ReasonNoFilter, e.Explain(ir.NewAction("X"), nil).Reason)
}

func TestIsFiltered_NonStringTypeAlwaysObservable(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Allowlist: "NEVER"}

	for _, a := range []ir.Object{
		{"type": ir.Int(42)},
		{"type": ir.Object{"nested": ir.Bool(true)}},
		{"payload": ir.Int(1)},
		nil,
	} {
		d := e.Explain(a, local)
		assert.False(t, d.Filtered)
		assert.Equal(t, ReasonNotStringLike, d.Reason)
	}
}

func TestIsFiltered_GlobalFallback(t *testing.T) {
	tests := []struct {
		name       string
		global     Global
		actionType string
		want       bool
	}{
		{"denylist specific matches", Global{State: DenylistSpecific, Denylist: "NOISE", Allowlist: "ZZZ"}, "NOISE_TICK", true},
		{"denylist specific ignores allowlist", Global{State: DenylistSpecific, Denylist: "NOISE", Allowlist: "ZZZ"}, "USER", false},
		{"allowlist specific misses", Global{State: AllowlistSpecific, Allowlist: "USER", Denylist: "USER"}, "CART", true},
		{"allowlist specific ignores denylist", Global{State: AllowlistSpecific, Allowlist: "USER", Denylist: "USER"}, "USER", false},
		{"do not filter", Global{State: DoNotFilter, Denylist: "USER"}, "USER", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := quietEngine(tt.global)
			assert.Equal(t, tt.want, e.IsTypeFiltered(tt.actionType, nil))
		})
	}
}

func TestIsFiltered_LocalOverridesGlobal(t *testing.T) {
	e := quietEngine(Global{State: DenylistSpecific, Denylist: "USER"})

	assert.True(t, e.IsTypeFiltered("USER", nil))
	assert.False(t, e.IsTypeFiltered("USER", &LocalFilter{Denylist: "CART"}))
}

func TestIsFiltered_ECMAScriptSemantics(t *testing.T) {
	e := quietEngine(Global{})

	assert.True(t, e.IsTypeFiltered("@@redux/INIT", &LocalFilter{Denylist: `^@@redux\/`}))
	assert.True(t, e.IsTypeFiltered("x", &LocalFilter{Denylist: `(?=x)`}), "lookahead is supported")
	assert.False(t, e.IsTypeFiltered("foo", &LocalFilter{Denylist: "FOO"}), "matching is case sensitive")
}

func TestIsFiltered_InvalidPatternsNeverSuppress(t *testing.T) {
	e := quietEngine(Global{})

	assert.False(t, e.IsTypeFiltered("ANY", &LocalFilter{Allowlist: "(unclosed"}))
	assert.False(t, e.IsTypeFiltered("ANY", &LocalFilter{Denylist: "[bad"}))
	assert.True(t, e.IsTypeFiltered("ANY", &LocalFilter{Allowlist: "(unclosed", Denylist: "ANY"}))
}

func TestZeroEngineUsable(t *testing.T) {
	var e Engine
	assert.True(t, e.IsTypeFiltered("BAZ", &LocalFilter{Allowlist: "FOO"}))
	assert.False(t, e.IsTypeFiltered("BAZ", nil))
}

func TestNilEngineUsable(t *testing.T) {
	var e *Engine
	assert.True(t, e.IsTypeFiltered("BAZ", &LocalFilter{Allowlist: "FOO"}))
	assert.True(t, e.IsTypeFiltered("FOO_BAR", &LocalFilter{Denylist: "FOO"}))
	assert.False(t, e.IsTypeFiltered("FOO", &LocalFilter{Allowlist: "FOO"}))
	assert.Equal(t, ReasonNoFilter, e.Explain(ir.NewAction("FOO"), nil).Reason)
}

func TestIsFiltered_ConcurrentUse(t *testing.T) {
	e := quietEngine(Global{})
	local := &LocalFilter{Denylist: "TICK|TOCK"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.True(t, e.IsTypeFiltered("TICK", local))
				assert.False(t, e.IsTypeFiltered("USER", local))
			}
		}()
	}
	wg.Wait()
}

func TestCompile(t *testing.T) {
	re, err := Compile(`^https?://localhost`)
	require.NoError(t, err)
	ok, err := re.MatchString("http://localhost:3000/app")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Compile("(")
	assert.Error(t, err)
}
