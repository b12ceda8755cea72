package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaUnmarshalKeepsNumbers(t *testing.T) {
	var m Meta
	require.NoError(t, json.Unmarshal([]byte(`{"big":12345678901234567891,"f":0.25,"n":{"k":3}}`), &m))

	assert.Equal(t, json.Number("12345678901234567891"), m["big"])
	assert.Equal(t, json.Number("0.25"), m["f"])
	assert.Equal(t, map[string]any{"k": json.Number("3")}, m["n"])

	var null Meta
	require.NoError(t, json.Unmarshal([]byte(`null`), &null))
	assert.Nil(t, null)
}

func TestMetaNormalize(t *testing.T) {
	in := Meta{"start_token": 4, "big": uint64(18446744073709551615), "tags": []string{"a"}}
	got, err := in.Normalize()
	require.NoError(t, err)

	assert.Equal(t, Meta{
		"start_token": json.Number("4"),
		"big":         json.Number("18446744073709551615"),
		"tags":        []any{"a"},
	}, got)
	assert.Equal(t, 4, in["start_token"], "input is not modified")

	again, err := got.Normalize()
	require.NoError(t, err)
	assert.Equal(t, got, again)

	none, err := Meta(nil).Normalize()
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = Meta{"bad": make(chan int)}.Normalize()
	assert.ErrorIs(t, err, ErrValidation)
}
