package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgsVariants(t *testing.T) {
	args, err := ParseArgs([]byte(`{
		"title": "Budget review",
		"duration_minutes": 45,
		"all_day": false,
		"proposed_times": ["2026-03-02T09:00:00Z", "2026-03-03T09:00:00Z"],
		"meta": {"b": 2, "a": 1},
		"missing": null
	}`))
	require.NoError(t, err)

	s, ok := args["title"].Str()
	assert.True(t, ok)
	assert.Equal(t, "Budget review", s)

	n, ok := args["duration_minutes"].Num()
	assert.True(t, ok)
	assert.Equal(t, 45.0, n)
	assert.Equal(t, "45", args.String("duration_minutes"))

	b, ok := args["all_day"].Bool()
	assert.True(t, ok)
	assert.False(t, b)

	list, ok := args["proposed_times"].List()
	require.True(t, ok)
	assert.Len(t, list, 2)
	assert.Equal(t, "[2026-03-02T09:00:00Z, 2026-03-03T09:00:00Z]", args.String("proposed_times"))

	assert.Equal(t, KindString, args["meta"].Kind())
	assert.JSONEq(t, `{"b":2,"a":1}`, args.String("meta"))

	assert.True(t, args["missing"].IsNull())
	assert.False(t, args.Has("missing"))
	assert.False(t, args.Has("absent"))
}

func TestParseArgsEmptyAndInvalid(t *testing.T) {
	args, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ParseArgs([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = ParseArgs([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = ParseArgs([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestValueLenientAccessors(t *testing.T) {
	n, ok := String(" 12.5 ").Num()
	assert.True(t, ok)
	assert.Equal(t, 12.5, n)

	b, ok := String("true").Bool()
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = List().Num()
	assert.False(t, ok)
}

func TestValueMarshalRoundTrip(t *testing.T) {
	in := Args{
		"s": String("x"),
		"n": Number(3),
		"b": Bool(true),
		"l": List(String("a"), Number(1.5)),
		"z": {},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"x","n":3,"b":true,"l":["a",1.5],"z":null}`, string(data))
}

func TestSignatureIgnoresKeyOrder(t *testing.T) {
	a, err := ParseArgs([]byte(`{"title":"x","due":"friday"}`))
	require.NoError(t, err)
	b, err := ParseArgs([]byte(`{"due":"friday","title":"x"}`))
	require.NoError(t, err)

	ca := Call{Name: "create_or_update_task", Args: a}
	cb := Call{Name: "create_or_update_task", Args: b}
	assert.Equal(t, ca.Signature(), cb.Signature())
	assert.Equal(t, `create_or_update_task:due=string:"friday",title=string:"x"`, ca.Signature())
}

func TestSignatureDistinguishesKinds(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
	}{
		{"string vs number", String("1"), Number(1)},
		{"string vs bool", String("true"), Bool(true)},
		{"string vs list", String("[a, b]"), List(String("a"), String("b"))},
		{"list items", List(String("1")), List(Number(1))},
		{"string vs null", String(""), Value{}},
		{"separator inside string", String("a,b=c"), List(String("a"), String("b=c"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sa := Args{"k": tt.a}.Signature()
			sb := Args{"k": tt.b}.Signature()
			if sa == sb {
				t.Errorf("signatures collide: %q", sa)
			}
		})
	}
}
