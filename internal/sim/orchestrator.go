package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"quizload/internal/events"
)

// Summary counts how the devices of a run ended.
type Summary struct {
	Spawned   int `json:"spawned"`
	Completed int `json:"completed"`
	TimedOut  int `json:"timed_out"`
	Cancelled int `json:"cancelled"`
}

func (s Summary) String() string {
	return fmt.Sprintf("spawned=%d completed=%d timed_out=%d cancelled=%d", s.Spawned, s.Completed, s.TimedOut, s.Cancelled)
}

// Orchestrator starts one device per credential and waits for all of them.
type Orchestrator struct {
	env           Env
	pacer         *rate.Limiter
	maxConcurrent int
	seed          int64
	progress      func(spawned, finished, total int)

	mu      sync.Mutex
	devices []*Device

	total    atomic.Int64
	spawned  atomic.Int64
	finished atomic.Int64
}

// NewOrchestrator paces device starts stagger apart. maxConcurrent > 0 caps
// how many devices run at once.
func NewOrchestrator(env Env, stagger time.Duration, maxConcurrent int) *Orchestrator {
	if env.Log == nil {
		env.Log = slog.Default()
	}
	limit := rate.Inf
	if stagger > 0 {
		limit = rate.Every(stagger)
	}
	return &Orchestrator{
		env:           env,
		pacer:         rate.NewLimiter(limit, 1),
		maxConcurrent: maxConcurrent,
		seed:          time.Now().UnixNano(),
	}
}

// SetSeed fixes the seed the per-device random sources derive from.
func (o *Orchestrator) SetSeed(seed int64) { o.seed = seed }

// OnProgress registers fn to be called whenever a device starts or finishes.
func (o *Orchestrator) OnProgress(fn func(spawned, finished, total int)) { o.progress = fn }

func (o *Orchestrator) report() {
	if o.progress != nil {
		o.progress(int(o.spawned.Load()), int(o.finished.Load()), int(o.total.Load()))
	}
}

// Run starts a device for every credential and returns once all of them have
// terminated. Cancelling ctx stops further starts and ends running devices.
func (o *Orchestrator) Run(ctx context.Context, creds []events.Credential) Summary {
	log := o.env.Log
	var sum Summary
	if len(creds) == 0 {
		log.Info("no devices to simulate")
		return sum
	}
	o.total.Store(int64(len(creds)))

	var sem chan struct{}
	if o.maxConcurrent > 0 {
		sem = make(chan struct{}, o.maxConcurrent)
	}

	var (
		wg  sync.WaitGroup
		smu sync.Mutex
	)
	tally := func(out Outcome) {
		smu.Lock()
		defer smu.Unlock()
		switch out {
		case Completed:
			sum.Completed++
		case TimedOut:
			sum.TimedOut++
		default:
			sum.Cancelled++
		}
	}

	log.Info("starting devices", "count", len(creds))
spawn:
	for i, cred := range creds {
		if err := o.pacer.Wait(ctx); err != nil {
			log.Warn("stopped starting devices", "started", i, "err", err)
			break
		}
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				log.Warn("stopped starting devices", "started", i, "err", ctx.Err())
				break spawn
			}
		}
		dev := NewDevice(o.env, cred, NewClientID(cred.Identifier), rand.New(rand.NewSource(o.seed+int64(i))))
		o.mu.Lock()
		o.devices = append(o.devices, dev)
		o.mu.Unlock()

		sum.Spawned++
		o.spawned.Add(1)
		o.report()
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := dev.Run(ctx)
			if sem != nil {
				<-sem
			}
			tally(out)
			o.finished.Add(1)
			o.report()
		}()
	}
	wg.Wait()

	log.Info("all simulated clients finished", "spawned", sum.Spawned, "completed", sum.Completed,
		"timed_out", sum.TimedOut, "cancelled", sum.Cancelled)
	return sum
}

// Snapshot counts started devices per state.
func (o *Orchestrator) Snapshot() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(States))
	for _, s := range States {
		out[s.String()] = 0
	}
	for _, d := range o.devices {
		out[d.State().String()]++
	}
	return out
}

// Progress returns started, finished and total device counts.
func (o *Orchestrator) Progress() (spawned, finished, total int) {
	return int(o.spawned.Load()), int(o.finished.Load()), int(o.total.Load())
}
