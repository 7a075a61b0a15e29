package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
)

// NewItemEnvironment creates the CEL environment item predicates compile in.
// It declares:
//   - Item variables: id, name, description, category, price, stock, rating, in_stock
//   - Custom functions: glob
func NewItemEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("id", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("stock", cel.IntType),
		cel.Variable("rating", cel.DoubleType),
		cel.Variable("in_stock", cel.BoolType),

		// glob: shell pattern match, e.g. glob("*lamp*", name.lowerAscii())
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, s ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := s.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := filepath.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// BuildItemActivation maps an item onto the variables of NewItemEnvironment.
func BuildItemActivation(item catalog.Item) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"description": item.Description,
		"category":    item.Category,
		"price":       item.Price,
		"stock":       int64(item.Stock),
		"rating":      item.Rating,
		"in_stock":    item.InStock(),
	}
}
