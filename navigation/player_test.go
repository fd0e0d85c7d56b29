package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playedStep struct {
	previous string
	current  string
}

type stepRecorder struct {
	lock  sync.Mutex
	steps []playedStep
}

func (recorder *stepRecorder) record(ctx context.Context, previous string, current string) error {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	recorder.steps = append(recorder.steps, playedStep{previous: previous, current: current})
	return nil
}

func (recorder *stepRecorder) recorded() []playedStep {
	recorder.lock.Lock()
	defer recorder.lock.Unlock()
	return append([]playedStep(nil), recorder.steps...)
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for player")
	}
}

func TestPlayerStepsThroughMembers(t *testing.T) {
	var recorder stepRecorder
	player := NewPlayer([]string{"a", "b", "c"}, time.Millisecond, recorder.record)

	done := make(chan struct{})
	player.OnFinish(func() { close(done) })
	player.Start(context.Background())
	waitFor(t, done)

	assert.Equal(t, []playedStep{
		{previous: "", current: "a"},
		{previous: "a", current: "b"},
		{previous: "b", current: "c"},
	}, recorder.recorded())
	assert.False(t, player.Running())
}

func TestPlayerPauseAndResume(t *testing.T) {
	var recorder stepRecorder
	var player *Player
	paused := make(chan struct{})
	player = NewPlayer([]string{"a", "b", "c"}, time.Millisecond, func(
		ctx context.Context,
		previous string,
		current string,
	) error {
		if current == "a" {
			player.Pause()
			defer close(paused)
		}
		return recorder.record(ctx, previous, current)
	})

	player.Start(context.Background())
	waitFor(t, paused)
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, recorder.recorded(), 1)
	assert.False(t, player.Running())

	done := make(chan struct{})
	player.OnFinish(func() { close(done) })
	player.Start(context.Background())
	waitFor(t, done)

	assert.Equal(t, []playedStep{
		{previous: "", current: "a"},
		{previous: "a", current: "b"},
		{previous: "b", current: "c"},
	}, recorder.recorded())
}

func TestPlayerStopsOnCanceledContext(t *testing.T) {
	var recorder stepRecorder
	ctx, cancel := context.WithCancel(context.Background())
	canceled := make(chan struct{})
	player := NewPlayer([]string{"a", "b", "c"}, time.Millisecond, func(
		stepCtx context.Context,
		previous string,
		current string,
	) error {
		cancel()
		defer close(canceled)
		return recorder.record(stepCtx, previous, current)
	})

	player.Start(ctx)
	waitFor(t, canceled)
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, recorder.recorded(), 1)
	assert.False(t, player.Running())
}

func TestPlayerStopsOnStepError(t *testing.T) {
	failed := make(chan struct{})
	player := NewPlayer([]string{"a", "b"}, time.Millisecond, func(
		ctx context.Context,
		previous string,
		current string,
	) error {
		defer close(failed)
		return errors.New("redraw failed")
	})

	player.Start(context.Background())
	waitFor(t, failed)

	require.Eventually(t, func() bool { return !player.Running() }, time.Second, time.Millisecond)
}

func TestPlayerTimeout(t *testing.T) {
	player := NewPlayer(nil, 300*time.Millisecond, nil)
	assert.Equal(t, 300*time.Millisecond, player.Timeout())

	player.SetTimeout(time.Second)
	assert.Equal(t, time.Second, player.Timeout())
}
