package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// StepFunc shows the current member of a player, and hides the previous one. Previous is
// empty on the first step.
type StepFunc func(ctx context.Context, previous string, current string) error

// Player steps through members on a timer. At most one step is pending at a time: the next
// step is scheduled when the previous one completes.
type Player struct {
	lock     sync.Mutex
	members  []string
	current  int
	timeout  time.Duration
	running  bool
	pending  bool
	step     StepFunc
	onFinish func()
	ctx      context.Context
}

func NewPlayer(members []string, timeout time.Duration, step StepFunc) *Player {
	return &Player{members: members, timeout: timeout, step: step, ctx: context.Background()}
}

// OnFinish sets a function called after the last member has been shown.
func (player *Player) OnFinish(callback func()) {
	player.lock.Lock()
	defer player.lock.Unlock()
	player.onFinish = callback
}

func (player *Player) Timeout() time.Duration {
	player.lock.Lock()
	defer player.lock.Unlock()
	return player.timeout
}

func (player *Player) SetTimeout(timeout time.Duration) {
	player.lock.Lock()
	defer player.lock.Unlock()
	player.timeout = timeout
}

func (player *Player) Running() bool {
	player.lock.Lock()
	defer player.lock.Unlock()
	return player.running
}

// Start resumes playing. The player stops when ctx is canceled.
func (player *Player) Start(ctx context.Context) {
	player.lock.Lock()
	defer player.lock.Unlock()

	player.ctx = ctx
	player.running = true
	if !player.pending {
		player.schedule()
	}
}

// Pause stops playing after the pending step, if any.
func (player *Player) Pause() {
	player.lock.Lock()
	defer player.lock.Unlock()
	player.running = false
}

// Must be called with the lock held.
func (player *Player) schedule() {
	player.pending = true
	time.AfterFunc(player.timeout, player.next)
}

func (player *Player) next() {
	player.lock.Lock()
	player.pending = false

	if player.current > len(player.members)-1 {
		player.running = false
		onFinish := player.onFinish
		player.lock.Unlock()
		if onFinish != nil {
			onFinish()
		}
		return
	}

	ctx := player.ctx
	if !player.running || ctx.Err() != nil {
		player.running = false
		player.lock.Unlock()
		return
	}

	var previous string
	if player.current > 0 {
		previous = player.members[player.current-1]
	}
	current := player.members[player.current]
	// The step runs without the lock, so that Pause does not wait for it.
	player.pending = true
	player.lock.Unlock()

	err := player.step(ctx, previous, current)

	player.lock.Lock()
	defer player.lock.Unlock()
	player.pending = false

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.ErrorCause(wrap.Errorf(err, "failed to play member '%s'", current), "player stopped")
		}
		player.running = false
		return
	}

	player.current++
	if player.running {
		player.schedule()
	}
}

// Player returns a player through the members of the last slice of the chart's first
// dimension, filtering one member at a time on the chart.
func (controller *Controller) Player(chartID string) (*Player, error) {
	chart, err := controller.Chart(chartID)
	if err != nil {
		return nil, err
	}

	dimensions := chart.Dimensions()
	if len(dimensions) == 0 {
		return nil, wrap.Errorf(errors.New("chart has no dimension"), "cannot play chart '%s'", chartID)
	}

	controller.lock.Lock()
	members := dimensions[0].LastSlice().IDs()
	controller.lock.Unlock()

	return NewPlayer(members, chart.PlayerTimeout(), func(
		ctx context.Context,
		previous string,
		current string,
	) error {
		controller.lock.Lock()
		defer controller.lock.Unlock()

		element := chart.Element()
		if err := element.Filter(current); err != nil {
			return err
		}
		if previous != "" {
			if err := element.Filter(previous); err != nil {
				return err
			}
		}
		return controller.redrawAll(ctx)
	}), nil
}
