package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treewskyblue/Medvise/internal/config"
)

func Test_Vector_Value(t *testing.T) {
	v, err := Vector{1, -0.5, 0.25}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[1,-0.5,0.25]", v)

	v, err = Vector(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func Test_Vector_Scan(t *testing.T) {
	var cases = []struct {
		name   string
		input  any
		output Vector
		err    bool
	}{
		{name: "bytes", input: []byte("[1,2,3]"), output: Vector{1, 2, 3}},
		{name: "string with spaces", input: " [0.5, -1] ", output: Vector{0.5, -1}},
		{name: "empty", input: "[]", output: Vector{}},
		{name: "nil", input: nil, output: nil},
		{name: "no brackets", input: "1,2", err: true},
		{name: "bad element", input: "[1,x]", err: true},
		{name: "wrong type", input: 42, err: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var v Vector
			err := v.Scan(c.input)
			if c.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.output, v)
		})
	}
}

func Test_ConnectDB(t *testing.T) {
	_, err := ConnectDB(config.DatabaseConfig{})
	assert.Error(t, err)

	_, err = ConnectDB(config.DatabaseConfig{URL: "postgres://localhost/medvise", Driver: "mysql"})
	assert.Error(t, err)

	sqldb, err := ConnectDB(config.DatabaseConfig{URL: "postgres://localhost/medvise", Driver: "pq"})
	require.NoError(t, err)
	assert.NoError(t, sqldb.Close())

	sqldb, err = ConnectDB(config.DatabaseConfig{URL: "postgres://user@localhost:5432/medvise", Driver: "pgdriver", Password: "secret"})
	require.NoError(t, err)
	assert.NoError(t, sqldb.Close())
}
