package scenario

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"shamrtos"
	"shamrtos/board"
	"shamrtos/internal/jitter"
	"shamrtos/internal/script"
)

// Options 是跑场景时文件之外的东西
type Options struct {
	// PressEvery 不为 0 时，另起一个 goroutine 按真实时间每隔这么久按一下按键，
	// 模拟「外面有人在按」。这样跑出来的结果不再是确定的。
	PressEvery time.Duration
	// Listener 收到每一次调度选择
	Listener shamrtos.Listener
}

// Run 在一块新的模拟板上跑场景，直到关机、停机或者 ctx 取消。
// 停机的时候报告照样会生成，同时返回 *shamrtos.HaltError。
func Run(ctx context.Context, f *File, opts Options) (*Report, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	hw := board.New(f.Kernel.ClockHz)
	k, err := shamrtos.NewOS(f.Kernel, hw)
	if err != nil {
		return nil, err
	}
	if opts.Listener != nil {
		k.AddListener(opts.Listener)
	}

	env, err := build(k, hw, f)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"scenario":   f.Name,
		"threads":    len(f.Threads),
		"time_slice": f.TimeSlice,
		"duration":   f.DurationMs,
	}).Info("[SCENARIO] Run")

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return k.Launch(gctx, f.TimeSlice)
	})

	if opts.PressEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.PressEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					hw.Press()
				}
			}
		})
	}

	runErr := g.Wait()
	return newReport(f, k, hw, env), runErr
}

// build 建信号量、记录器，编译脚本，装好触发器和线程
func build(k *shamrtos.OS, hw *board.Sim, f *File) (*script.Env, error) {
	env := script.NewEnv(k)
	ms := f.msCycles()

	for _, s := range f.Semaphores {
		sem := shamrtos.NewSemaphore(s.Name, 0)
		k.InitSemaphore(sem, s.Value)
		env.Semaphores[s.Name] = sem
	}
	for _, r := range f.Recorders {
		capacity := r.Capacity
		if capacity <= 0 {
			capacity = defaultRecorderCapacity
		}
		env.Recorders[r.Name] = jitter.New(r.Name, r.PeriodMs*ms, capacity)
	}

	names := make([]string, 0, len(f.Scripts))
	for name := range f.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, err := script.Compile(name, f.Scripts[name], env)
		if err != nil {
			return nil, err
		}
		env.Programs[name] = p
	}
	if err := env.Link(); err != nil {
		return nil, err
	}

	for _, p := range f.Periodic {
		if err := k.PeriodTriggerInit(env.Semaphores[p.Semaphore], p.PeriodMs); err != nil {
			return nil, fmt.Errorf("periodic %s: %w", p.Semaphore, err)
		}
	}
	if f.Edge != nil {
		if err := k.EdgeTriggerInit(env.Semaphores[f.Edge.Semaphore], f.Edge.Priority); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Events {
		if err := k.AddPeriodicEventThread(eventFunc(k, env, e), e.Period); err != nil {
			return nil, fmt.Errorf("event: %w", err)
		}
	}

	for _, t := range f.Threads {
		if _, err := env.Spawn(t.Script, t.Priority); err != nil {
			return nil, fmt.Errorf("thread %s: %w", t.Script, err)
		}
	}

	for _, at := range f.PressesMs {
		hw.At(at*ms, hw.Press)
	}
	if f.DurationMs > 0 {
		hw.At(f.DurationMs*ms, k.Shutdown)
	}
	return env, nil
}

// eventFunc 跑在睡眠计时器的中断里，只能 Signal 和计数
func eventFunc(k *shamrtos.OS, env *script.Env, e EventSpec) func() {
	sem := env.Semaphores[e.Signal]
	return func() {
		if sem != nil {
			k.Signal(sem)
		}
		if e.Count != "" {
			env.Count(e.Count, 1)
		}
	}
}
