package surface

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("surface did not terminate")
	}
}

func TestScriptAnswersThenWaitsForClose(t *testing.T) {
	script := &Script{Answers: []bool{true, false}}
	sink := oneshot.New[bool]()

	h, err := script.Launch(context.Background(), pixelBuds, sink)
	require.NoError(t, err)

	accept, ok, err := sink.Recv(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, accept, "first answer wins")

	select {
	case <-h.Done():
		t.Fatal("script must wait for close")
	case <-time.After(20 * time.Millisecond):
	}

	h.Close()
	h.Close()
	waitDone(t, h)

	assert.Equal(t, 1, script.Launches())
	assert.Equal(t, 1, script.Closes())
	assert.Equal(t, pixelBuds, script.Requests()[0])
}

func TestScriptTerminatesWithoutAnswer(t *testing.T) {
	script := &Script{Terminate: true}
	sink := oneshot.New[bool]()

	h, err := script.Launch(context.Background(), pixelBuds, sink)
	require.NoError(t, err)
	waitDone(t, h)

	_, _, settled := sink.TryRecv()
	assert.False(t, settled)
}

func TestScriptLaunchError(t *testing.T) {
	boom := errors.New("no display")
	_, err := (&Script{LaunchErr: boom}).Launch(context.Background(), pixelBuds, oneshot.New[bool]())
	require.ErrorIs(t, err, boom)
}
