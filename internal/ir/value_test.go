package ir

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = NewIRBigInt(big.NewInt(7))
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeys_UTF16Order(t *testing.T) {
	// U+FB01 sorts before U+1F600 in UTF-8 byte order but after it in
	// UTF-16 code unit order (the emoji encodes as a 0xD83D surrogate).
	obj := IRObject{
		"\U0001F600": IRInt(1),
		"\uFB01":     IRInt(2),
	}
	assert.Equal(t, []string{"\U0001F600", "\uFB01"}, obj.SortedKeys())
}

func TestNewIRBigInt_Copies(t *testing.T) {
	n := big.NewInt(10)
	v := NewIRBigInt(n)
	n.SetInt64(99)

	assert.Equal(t, "10", v.String())

	out := v.BigInt()
	out.SetInt64(5)
	assert.Equal(t, "10", v.String(), "BigInt() must return a copy")
}

func TestNewIRBigInt_Nil(t *testing.T) {
	assert.Equal(t, "0", NewIRBigInt(nil).String())
	assert.Equal(t, "0", IRBigInt{}.String())
}

func TestIRObjectAccessors(t *testing.T) {
	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	obj := IRObject{
		"name":  IRString("alice"),
		"count": IRInt(3),
		"small": IRInt(12),
		"huge":  NewIRBigInt(huge),
		"null":  IRNull{},
	}

	s, err := obj.String("name")
	require.NoError(t, err)
	assert.Equal(t, "alice", s)

	n, err := obj.Int("count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	b, err := obj.BigInt("small")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Cmp(big.NewInt(12)))

	b, err = obj.BigInt("huge")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Cmp(huge))

	opt, err := obj.OptBigInt("absent")
	require.NoError(t, err)
	assert.Nil(t, opt)

	opt, err = obj.OptBigInt("null")
	require.NoError(t, err)
	assert.Nil(t, opt)
}

func TestIRObjectAccessors_Errors(t *testing.T) {
	obj := IRObject{"name": IRInt(1)}

	_, err := obj.String("name")
	assert.ErrorContains(t, err, "expected string")

	_, err = obj.String("missing")
	assert.ErrorContains(t, err, "missing")

	_, err = obj.Int("missing")
	assert.Error(t, err)

	_, err = IRObject{"x": IRString("1")}.BigInt("x")
	assert.ErrorContains(t, err, "expected integer")
}

func TestIRObjectClone_Deep(t *testing.T) {
	orig := IRObject{
		"nested": IRObject{"a": IRInt(1)},
		"list":   IRArray{IRString("x")},
	}
	clone := orig.Clone()

	clone["nested"].(IRObject)["a"] = IRInt(2)
	clone["list"].(IRArray)[0] = IRString("y")

	assert.Equal(t, IRInt(1), orig["nested"].(IRObject)["a"])
	assert.Equal(t, IRString("x"), orig["list"].(IRArray)[0])
}

func TestUnmarshalIRValue_Numbers(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"small": 5, "big": 340282366920938463463374607431768211456}`))
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRInt(5), obj["small"])

	bi, ok := obj["big"].(IRBigInt)
	require.True(t, ok, "expected IRBigInt, got %T", obj["big"])
	assert.Equal(t, "340282366920938463463374607431768211456", bi.String())
}

func TestUnmarshalIRValue_RejectsFloats(t *testing.T) {
	_, err := UnmarshalIRValue([]byte(`{"x": 1.5}`))
	assert.ErrorContains(t, err, "floats are forbidden")
}

func TestIRObject_JSONRoundTrip(t *testing.T) {
	obj := IRObject{
		"id":    IRString("1"),
		"count": IRInt(2),
		"flag":  IRBool(true),
		"amt":   NewIRBigInt(new(big.Int).Lsh(big.NewInt(1), 100)),
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))

	again, err := MarshalCanonical(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"s": "x",
		"i": 3,
		"u": uint64(1) << 63,
		"l": []any{true, nil},
	})
	require.NoError(t, err)

	obj := v.(IRObject)
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRInt(3), obj["i"])
	assert.Equal(t, "9223372036854775808", obj["u"].(IRBigInt).String())
	assert.Equal(t, IRArray{IRBool(true), IRNull{}}, obj["l"])

	_, err = FromGo(3.14)
	assert.Error(t, err)

	_, err = FromGo(struct{}{})
	assert.ErrorContains(t, err, "unsupported type")
}
