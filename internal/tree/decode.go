package tree

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/alexjbarnes/studio-sync/internal/errors"
	"github.com/tidwall/gjson"
)

// Decode parses JSON into a Value. Numbers written without a fraction or
// exponent that fit in 64 bits stay integers; everything else numeric is
// a float.
func Decode(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, fmt.Errorf("%w: not valid JSON", apperrors.ErrInvalidTree)
	}

	return fromResult(gjson.ParseBytes(data)), nil
}

// DecodeNode parses JSON and coerces it into a Node.
func DecodeNode(data []byte) (Node, error) {
	v, err := Decode(data)
	if err != nil {
		return Node{}, err
	}

	if v.Kind() != KindMap {
		return Node{}, fmt.Errorf("%w: top level is %s, want object", apperrors.ErrInvalidTree, v.Kind())
	}

	return FromValue(v), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		return number(r)
	case gjson.JSON:
		if r.IsArray() {
			items := []Value{}
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromResult(item))
				return true
			})

			return List(items...)
		}

		m := map[string]Value{}
		r.ForEach(func(key, item gjson.Result) bool {
			m[key.Str] = fromResult(item)
			return true
		})

		return Map(m)
	default:
		return Null()
	}
}

func number(r gjson.Result) Value {
	raw := strings.TrimSpace(r.Raw)
	if !strings.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i)
		}
	}

	return Float(r.Num)
}
