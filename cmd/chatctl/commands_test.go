package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"0.7", 0.7},
		{"42", float64(42)},
		{"null", nil},
		{"true", true},
		{`"ru"`, "ru"},
		{"ru", "ru"},
		{"be brief", "be brief"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.raw))
		})
	}
}

func TestCompleteCommand(t *testing.T) {
	assert.Equal(t, []string{"/select", "/set", "/settings"}, completeCommand("/se"))
	assert.Nil(t, completeCommand("hello"))
	assert.Nil(t, completeCommand("/set llm"))
}

func TestDispatch(t *testing.T) {
	var out bytes.Buffer
	a := &app{out: &out}

	quit, err := a.dispatch(context.Background(), "/quit")
	require.NoError(t, err)
	assert.True(t, quit)

	_, err = a.dispatch(context.Background(), "/bogus")
	assert.ErrorContains(t, err, "unknown command")

	_, err = a.dispatch(context.Background(), "/login only-email")
	assert.ErrorContains(t, err, "usage: /login <email> <password>")

	_, err = a.dispatch(context.Background(), "/help")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "/rename")
}
