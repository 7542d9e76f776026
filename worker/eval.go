package worker

import (
	"context"

	"github.com/xet7/httpvfs"
	"github.com/xet7/httpvfs/domain/model"
)

// Evaluator runs caller-supplied code against a live database.
type Evaluator interface {
	Eval(ctx context.Context, db *httpvfs.Database, code string) (any, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, db *httpvfs.Database, code string) (any, error)

// Eval calls f.
func (f EvaluatorFunc) Eval(ctx context.Context, db *httpvfs.Database, code string) (any, error) {
	return f(ctx, db, code)
}

// SQLEvaluator runs code as a SQL script and returns the rows of the last
// statement that produced any, one object per row.
type SQLEvaluator struct{}

// Eval implements Evaluator.
func (SQLEvaluator) Eval(ctx context.Context, db *httpvfs.Database, code string) (any, error) {
	sets, err := db.Exec(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return []model.Object{}, nil
	}
	return sets[len(sets)-1].Objects(), nil
}
