package script

import (
	"fmt"
	"math"
	"strings"

	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/transform"
)

// predeclared is the environment every Starlark script runs in. Generated
// map programs rely on the ms module; the bare helpers are for expressions
// written in the DSL.
var predeclared = starlark.StringDict{
	"json": starlarkjson.Module,
	"ms": &starlarkstruct.Module{
		Name: "ms",
		Members: starlark.StringDict{
			"get":      starlark.NewBuiltin("get", msGet),
			"put":      starlark.NewBuiltin("put", msPut),
			"each":     starlark.NewBuiltin("each", msEach),
			"text":     starlark.NewBuiltin("text", msText),
			"num":      starlark.NewBuiltin("num", msNum),
			"apply":    starlark.NewBuiltin("apply", msApply),
			"cmp":      starlark.NewBuiltin("cmp", msCmp),
			"coalesce": starlark.NewBuiltin("coalesce", msCoalesce),
		},
	},
	"upper":  stringFunc("upper", strings.ToUpper),
	"lower":  stringFunc("lower", strings.ToLower),
	"trim":   stringFunc("trim", strings.TrimSpace),
	"concat": starlark.NewBuiltin("concat", concat),
}

// msGet walks dict keys and returns None as soon as one is missing.
func msGet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	var path *starlark.List
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &obj, &path); err != nil {
		return nil, err
	}
	cur := obj
	for i := 0; i < path.Len(); i++ {
		d, ok := cur.(*starlark.Dict)
		if !ok {
			return starlark.None, nil
		}
		v, found, err := d.Get(path.Index(i))
		if err != nil {
			return nil, err
		}
		if !found {
			return starlark.None, nil
		}
		cur = v
	}
	return cur, nil
}

// msPut stores value at path inside obj, creating intermediate dicts.
// None values are not stored.
func msPut(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj *starlark.Dict
	var path *starlark.List
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &obj, &path, &value); err != nil {
		return nil, err
	}
	if value == starlark.None || path.Len() == 0 {
		return starlark.None, nil
	}

	cur := obj
	for i := 0; i < path.Len()-1; i++ {
		key := path.Index(i)
		v, found, err := cur.Get(key)
		if err != nil {
			return nil, err
		}
		next, ok := v.(*starlark.Dict)
		if !found || !ok {
			next = starlark.NewDict(1)
			if err := cur.SetKey(key, next); err != nil {
				return nil, err
			}
		}
		cur = next
	}
	if err := cur.SetKey(path.Index(path.Len()-1), value); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// msEach makes any value iterable: lists pass through, None is empty and
// anything else is a single element.
func msEach(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case *starlark.List:
		return x, nil
	case starlark.Tuple:
		return starlark.NewList(append([]starlark.Value(nil), x...)), nil
	case starlark.NoneType:
		return starlark.NewList(nil), nil
	default:
		return starlark.NewList([]starlark.Value{v}), nil
	}
}

func msText(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if v == starlark.None {
		return starlark.None, nil
	}
	return starlark.String(toText(v)), nil
}

func msNum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	if v == starlark.None {
		return starlark.None, nil
	}
	f, err := toNumber(b.Name(), v)
	if err != nil {
		return nil, err
	}
	return starlark.Float(f), nil
}

// msApply runs a THEN transform. Whole results of integer inputs stay integers.
func msApply(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var kind string
	var amount starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &v, &kind, &amount); err != nil {
		return nil, err
	}
	if v == starlark.None {
		return starlark.None, nil
	}
	f, err := toNumber(b.Name(), v)
	if err != nil {
		return nil, err
	}
	n, ok := starlark.AsFloat(amount)
	if !ok {
		return nil, fmt.Errorf("%s: amount must be a number, got %s", b.Name(), amount.Type())
	}

	r, err := transform.Apply(f, mapping.Transform{Type: mapping.TransformType(kind), Value: n})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if _, isInt := v.(starlark.Int); isInt && r == math.Trunc(r) && math.Abs(r) < 1<<53 {
		return starlark.MakeInt64(int64(r)), nil
	}
	return starlark.Float(r), nil
}

func msCmp(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var actual, want starlark.Value
	var op string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &actual, &op, &want); err != nil {
		return nil, err
	}
	if actual == starlark.None {
		return starlark.False, nil
	}
	return starlark.Bool(transform.Compare(toText(actual), mapping.Operator(op), toText(want))), nil
}

// msCoalesce returns its first argument that is not None.
func msCoalesce(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	for _, v := range args {
		if v != starlark.None {
			return v, nil
		}
	}
	return starlark.None, nil
}

func stringFunc(name string, fn func(string) string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		if v == starlark.None {
			return starlark.None, nil
		}
		return starlark.String(fn(toText(v))), nil
	})
}

func concat(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	var sb strings.Builder
	for _, v := range args {
		if v != starlark.None {
			sb.WriteString(toText(v))
		}
	}
	return starlark.String(sb.String()), nil
}

// toText renders a value the way it would read in the JSON document.
func toText(v starlark.Value) string {
	switch x := v.(type) {
	case starlark.String:
		return string(x)
	case starlark.Float:
		return transform.FormatNumber(float64(x))
	case starlark.Bool:
		if x {
			return "true"
		}
		return "false"
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}

func toNumber(fn string, v starlark.Value) (float64, error) {
	if s, ok := v.(starlark.String); ok {
		f, ok := transform.ParseNumber(string(s))
		if !ok {
			return 0, fmt.Errorf("%s: %q is not a number", fn, string(s))
		}
		return f, nil
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s: expected a number, got %s", fn, v.Type())
	}
	return f, nil
}
