package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed interface over the attribute types an entity may hold.
// Only IRNull, IRString, IRInt, IRBigInt, IRBool, IRArray and IRObject
// implement it. There is no float type: floats break replay determinism.
type IRValue interface {
	irValue()
}

// IRNull is an explicit JSON null. Entity encoders omit absent optional
// fields instead of writing IRNull; it exists so decoded data round-trips.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString is a string attribute.
type IRString string

func (IRString) irValue() {}

// IRInt is a 64-bit integer attribute.
type IRInt int64

func (IRInt) irValue() {}

// IRBigInt is an arbitrary-precision integer attribute (uint256 amounts,
// token ids, block numbers). The wrapped value is never mutated after
// construction; use NewIRBigInt to take a defensive copy.
type IRBigInt struct {
	v *big.Int
}

func (IRBigInt) irValue() {}

// NewIRBigInt copies n into an IRBigInt. A nil n is treated as zero.
func NewIRBigInt(n *big.Int) IRBigInt {
	if n == nil {
		return IRBigInt{v: new(big.Int)}
	}
	return IRBigInt{v: new(big.Int).Set(n)}
}

// BigInt returns a copy of the wrapped integer.
func (b IRBigInt) BigInt() *big.Int {
	if b.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.v)
}

// String returns the base-10 form.
func (b IRBigInt) String() string {
	if b.v == nil {
		return "0"
	}
	return b.v.String()
}

// IRBool is a boolean attribute.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps attribute names to values. Use SortedKeys for deterministic
// iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's sort.Strings orders by UTF-8 bytes, which differs outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Clone returns a deep copy of obj. Staged mutations hold clones so a
// handler mutating its own map afterwards cannot rewrite the overlay.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// String reads a string attribute.
func (obj IRObject) String(key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("attribute %q: missing", key)
	}
	s, ok := v.(IRString)
	if !ok {
		return "", fmt.Errorf("attribute %q: expected string, got %T", key, v)
	}
	return string(s), nil
}

// Int reads an int64 attribute.
func (obj IRObject) Int(key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("attribute %q: missing", key)
	}
	n, ok := v.(IRInt)
	if !ok {
		return 0, fmt.Errorf("attribute %q: expected int, got %T", key, v)
	}
	return int64(n), nil
}

// BigInt reads an arbitrary-precision attribute. Small values decoded from
// JSON arrive as IRInt and are widened.
func (obj IRObject) BigInt(key string) (*big.Int, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("attribute %q: missing", key)
	}
	return toBigInt(key, v)
}

// OptBigInt reads an optional arbitrary-precision attribute. A missing key
// or IRNull yields (nil, nil).
func (obj IRObject) OptBigInt(key string) (*big.Int, error) {
	v, ok := obj[key]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.(IRNull); isNull {
		return nil, nil
	}
	return toBigInt(key, v)
}

func toBigInt(key string, v IRValue) (*big.Int, error) {
	switch n := v.(type) {
	case IRBigInt:
		return n.BigInt(), nil
	case IRInt:
		return big.NewInt(int64(n)), nil
	default:
		return nil, fmt.Errorf("attribute %q: expected integer, got %T", key, v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// MarshalJSON encodes obj canonically.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// UnmarshalIRValue decodes JSON into an IRValue. Integers that fit in int64
// become IRInt, larger ones IRBigInt. Floats are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON/YAML data (maps, slices, json.Number, ints,
// strings, bools, *big.Int) into an IRValue.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return fromBig(new(big.Int).SetUint64(val)), nil
	case *big.Int:
		return fromBig(val), nil
	case json.Number:
		n, ok := new(big.Int).SetString(string(val), 10)
		if !ok {
			return nil, fmt.Errorf("floats are forbidden in IR: %s", val)
		}
		return fromBig(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in IR: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type for IR: %T", v)
	}
}

func fromBig(n *big.Int) IRValue {
	if n.IsInt64() {
		return IRInt(n.Int64())
	}
	return NewIRBigInt(n)
}
