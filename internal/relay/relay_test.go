package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/codearena/pkg/types"
)

func TestDecode_SkipsOwnOrigin(t *testing.T) {
	env := types.Envelope{
		Event:   types.EventCodeUpdate,
		Room:    types.ChallengeRoom("c1"),
		Payload: []byte(`{"roomId":"c1","js":"1"}`),
	}
	b, err := encode("a", env)
	require.NoError(t, err)

	_, ok, err := decode("a", b)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := decode("b", b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.Room, got.Room)
	assert.JSONEq(t, string(env.Payload), string(got.Payload))
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, ok, err := decode("a", []byte("not json"))
	assert.Error(t, err)
	assert.False(t, ok)
}
