// Package cel provides a CEL-based predicate evaluator for catalog items.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// maxCachedPrograms bounds the compiled-program cache.
const maxCachedPrograms = 64

// ErrInvalidExpression wraps every rejection by ValidateExpression.
var ErrInvalidExpression = errors.New("invalid item expression")

// Evaluator compiles and evaluates CEL predicates over catalog items.
type Evaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

var _ outbound.ItemFilter = (*Evaluator)(nil)

// NewEvaluator creates a new CEL evaluator with the item environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewItemEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create item environment: %w", err)
	}
	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
// The expression must evaluate to a bool.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum allowed
// nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that expr is non-empty, within the length and
// nesting limits, and compiles to a boolean predicate.
func (e *Evaluator) ValidateExpression(expr string) error {
	_, err := e.program(expr)
	return err
}

// program returns the cached compiled program for expr, compiling on a miss.
func (e *Evaluator) program(expr string) (cel.Program, error) {
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("%w: too long: %d characters (max %d)", ErrInvalidExpression, len(expr), maxExpressionLength)
	}
	if expr == "" {
		return nil, fmt.Errorf("%w: expression is empty", ErrInvalidExpression)
	}
	if err := validateNesting(expr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}

	e.mu.Lock()
	prg, ok := e.programs[expr]
	e.mu.Unlock()
	if ok {
		return prg, nil
	}

	prg, err := e.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}

	e.mu.Lock()
	if len(e.programs) >= maxCachedPrograms {
		clear(e.programs)
	}
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Evaluate runs a compiled program against one item. The evaluation is
// bounded by evalTimeout and by ctx.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, item catalog.Item) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, BuildItemActivation(item))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// Filter returns the items matching expr, preserving order. The result is
// never nil.
func (e *Evaluator) Filter(ctx context.Context, expr string, items []catalog.Item) ([]catalog.Item, error) {
	prg, err := e.program(expr)
	if err != nil {
		return nil, err
	}

	out := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		ok, err := e.Evaluate(ctx, prg, it)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}
