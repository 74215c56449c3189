// Package filter evaluates AIP-160 filter expressions against event pages.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

// Predicate reports whether a page matches.
type Predicate func(event.EventPage) bool

// MatchAll accepts every page.
func MatchAll(event.EventPage) bool { return true }

// Declarations returns the identifiers page filters may reference.
func Declarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("type", filtering.TypeString),
		filtering.DeclareIdent("sequence", filtering.TypeInt),
		filtering.DeclareIdent("created_at", filtering.TypeTimestamp),
	)
}

// Parse compiles filterStr. An empty filter matches every page.
func Parse(filterStr string) (Predicate, error) {
	if strings.TrimSpace(filterStr) == "" {
		return MatchAll, nil
	}
	decls, err := Declarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, invalid(err, "parse filter")
	}
	pred, err := compile(parsed.CheckedExpr.GetExpr())
	if err != nil {
		return nil, invalid(err, "compile filter")
	}
	return pred, nil
}

// Pages returns the pages of book that match pred, leaving book unchanged.
func Pages(book event.EventBook, pred Predicate) []event.EventPage {
	if pred == nil {
		pred = MatchAll
	}
	var out []event.EventPage
	for _, page := range book.Clone().Pages {
		if pred(page) {
			out = append(out, page)
		}
	}
	return out
}

func invalid(err error, msg string) error {
	return apperrors.Wrap(apperrors.KindInvalidArgument, apperrors.CodeFilterInvalid, fmt.Sprintf("%s: %v", msg, err), err)
}

func compile(e *expr.Expr) (Predicate, error) {
	if e == nil {
		return MatchAll, nil
	}
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported expression type: %T", e.GetExprKind())
	}
	args := call.CallExpr.GetArgs()
	switch fn := call.CallExpr.GetFunction(); fn {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd, "_&&_":
		return combine(args, func(l, r bool) bool { return l && r })
	case filtering.FunctionOr, "_||_":
		return combine(args, func(l, r bool) bool { return l || r })
	case filtering.FunctionNot, "!_":
		if len(args) != 1 {
			return nil, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := compile(args[0])
		if err != nil {
			return nil, err
		}
		return func(p event.EventPage) bool { return !inner(p) }, nil
	case filtering.FunctionEquals, "_==_",
		filtering.FunctionNotEquals, "_!=_",
		filtering.FunctionLessThan, "_<_",
		filtering.FunctionLessEquals, "_<=_",
		filtering.FunctionGreaterThan, "_>_",
		filtering.FunctionGreaterEquals, "_>=_":
		return comparison(normalizeOp(fn), args)
	default:
		return nil, fmt.Errorf("unsupported function: %s", fn)
	}
}

func normalizeOp(fn string) string {
	switch fn {
	case "_==_":
		return filtering.FunctionEquals
	case "_!=_":
		return filtering.FunctionNotEquals
	case "_<_":
		return filtering.FunctionLessThan
	case "_<=_":
		return filtering.FunctionLessEquals
	case "_>_":
		return filtering.FunctionGreaterThan
	case "_>=_":
		return filtering.FunctionGreaterEquals
	default:
		return fn
	}
}

func combine(args []*expr.Expr, op func(l, r bool) bool) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("logical operator requires 2 arguments")
	}
	left, err := compile(args[0])
	if err != nil {
		return nil, err
	}
	right, err := compile(args[1])
	if err != nil {
		return nil, err
	}
	return func(p event.EventPage) bool { return op(left(p), right(p)) }, nil
}

func comparison(op string, args []*expr.Expr) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}
	ident, ok := args[0].GetExprKind().(*expr.Expr_IdentExpr)
	if !ok {
		return nil, fmt.Errorf("expected identifier, got %T", args[0].GetExprKind())
	}
	switch field := ident.IdentExpr.GetName(); field {
	case "type":
		want, err := stringValue(args[1])
		if err != nil {
			return nil, err
		}
		return func(p event.EventPage) bool { return compareOrdered(op, p.Payload.Type, want) }, nil
	case "sequence":
		want, err := intValue(args[1])
		if err != nil {
			return nil, err
		}
		return func(p event.EventPage) bool { return compareOrdered(op, int64(p.Sequence), want) }, nil
	case "created_at":
		want, err := timestampValue(args[1])
		if err != nil {
			return nil, err
		}
		return func(p event.EventPage) bool {
			return compareOrdered(op, p.CreatedAt.UTC().UnixNano(), want.UnixNano())
		}, nil
	default:
		return nil, fmt.Errorf("unknown field: %s", field)
	}
}

type ordered interface {
	~string | ~int64
}

func compareOrdered[T ordered](op string, got, want T) bool {
	switch op {
	case filtering.FunctionEquals:
		return got == want
	case filtering.FunctionNotEquals:
		return got != want
	case filtering.FunctionLessThan:
		return got < want
	case filtering.FunctionLessEquals:
		return got <= want
	case filtering.FunctionGreaterThan:
		return got > want
	case filtering.FunctionGreaterEquals:
		return got >= want
	default:
		return false
	}
}

func constant(e *expr.Expr) (*expr.Constant, error) {
	c, ok := e.GetExprKind().(*expr.Expr_ConstExpr)
	if !ok {
		return nil, fmt.Errorf("expected constant, got %T", e.GetExprKind())
	}
	return c.ConstExpr, nil
}

func stringValue(e *expr.Expr) (string, error) {
	c, err := constant(e)
	if err != nil {
		return "", err
	}
	v, ok := c.GetConstantKind().(*expr.Constant_StringValue)
	if !ok {
		return "", fmt.Errorf("expected string constant, got %T", c.GetConstantKind())
	}
	return v.StringValue, nil
}

func intValue(e *expr.Expr) (int64, error) {
	c, err := constant(e)
	if err != nil {
		return 0, err
	}
	switch v := c.GetConstantKind().(type) {
	case *expr.Constant_Int64Value:
		return v.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(v.Uint64Value), nil
	default:
		return 0, fmt.Errorf("expected integer constant, got %T", v)
	}
}

func timestampValue(e *expr.Expr) (time.Time, error) {
	call, ok := e.GetExprKind().(*expr.Expr_CallExpr)
	if !ok || call.CallExpr.GetFunction() != filtering.FunctionTimestamp || len(call.CallExpr.GetArgs()) != 1 {
		return time.Time{}, fmt.Errorf("expected timestamp(\"...\")")
	}
	raw, err := stringValue(call.CallExpr.GetArgs()[0])
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp format: %s", raw)
	}
	return t.UTC(), nil
}
