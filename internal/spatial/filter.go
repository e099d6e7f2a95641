package spatial

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rtsforge/capturepoint/pkg/core"
)

// Filter decides whether an otherwise eligible unit counts toward capture.
type Filter interface {
	Allow(u core.Unit) bool
}

// unitEnv is what a filter expression can see.
type unitEnv struct {
	ID   string
	Team int
	Role string
	X    float64
	Y    float64
	Z    float64
}

// ExprFilter evaluates a boolean expr-lang expression against each unit,
// e.g. `Team >= 0 && Role != "scout"`.
type ExprFilter struct {
	source  string
	program *vm.Program
}

// CompileFilter compiles code once. An empty expression yields a nil filter.
func CompileFilter(code string) (*ExprFilter, error) {
	if code == "" {
		return nil, nil
	}
	program, err := expr.Compile(code, expr.Env(unitEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling unit filter %q: %w", code, err)
	}
	return &ExprFilter{source: code, program: program}, nil
}

// Allow reports the expression result. Evaluation errors reject the unit.
func (f *ExprFilter) Allow(u core.Unit) bool {
	out, err := expr.Run(f.program, unitEnv{
		ID:   string(u.ID),
		Team: int(u.Team),
		Role: string(u.Role),
		X:    u.Location.X,
		Y:    u.Location.Y,
		Z:    u.Location.Z,
	})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (f *ExprFilter) String() string {
	return f.source
}
