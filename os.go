package shamrtos

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MaxTimeSlice 是 SysTick 24 位计数器装得下的时间片上限（不含）
const MaxTimeSlice = 1 << 24

// sleepTimer 是睡眠计时器占用的板载定时器的名字
const sleepTimer = "sleep"

// OS 是内核。持有 TCB 池、线程栈、调度器、默认的 FIFO 和邮箱、触发器表。
// 单核：任何时刻只有持有 CPU 的那个 goroutine（线程或者它上面跑的中断处理程序）
// 会碰这些状态。
type OS struct {
	cfg Config
	hw  Hardware
	cpu CPU
	mem Memory

	Scheduler Scheduler

	tcbs      []TCB
	run       int
	numThread int
	threadID  ThreadID

	fifo    *FIFO[uint32]
	mailbox *Mailbox[uint32]

	periodic  []periodicTrigger
	realCount int64
	events    []periodicEvent
	edgeSema  *Semaphore

	listeners    []Listener
	trace        []Selection
	traceDropped uint64

	epoch    uint64
	launched bool

	stop        chan struct{}
	stopOnce    sync.Once
	stopMu      sync.Mutex
	stopErr     error
	wg          sync.WaitGroup
	haltHandler func(*HaltError)
}

// NewOS 构建一个内核：检查配置，一次分配好 TCB 池和所有线程栈，然后 Init。
func NewOS(cfg Config, hw Hardware) (*OS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := SetLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	sched, _ := newScheduler(cfg.Scheduler)

	os := &OS{
		cfg:       cfg,
		hw:        hw,
		mem:       NewMemory(cfg.MaxThreads, cfg.StackWords()),
		Scheduler: sched,
		tcbs:      make([]TCB, cfg.MaxThreads),
		periodic:  make([]periodicTrigger, 0, cfg.MaxPeriodic),
		events:    make([]periodicEvent, 0, cfg.MaxPeriodic),
		stop:      make(chan struct{}),
	}
	for i := range os.tcbs {
		os.tcbs[i].permit = make(chan struct{}, 1)
	}
	os.fifo = NewFIFO[uint32](os, cfg.FIFOSize)
	os.mailbox = NewMailbox[uint32](os)

	if err := os.Init(); err != nil {
		return nil, err
	}
	return os, nil
}

// Config 返回 NewOS 时的配置
func (os *OS) Config() Config { return os.cfg }

// Init 关中断，把时钟调到最快，把内核的状态清干净，装好 PendSV 和睡眠计时器。
// 中断要到 Launch 之后第一个线程跑起来才打开。
func (os *OS) Init() error {
	if os.launched {
		return ErrLaunched
	}

	os.hw.DisableInterrupts()
	hz := os.hw.ClockInitFastest()
	os.epoch = os.hw.Now()

	os.run = -1
	os.numThread = 0
	os.threadID = 0
	for i := range os.tcbs {
		os.tcbs[i].reset()
	}
	os.cpu = CPU{running: -1}

	os.fifo.Init()
	os.mailbox.Init()

	os.periodic = os.periodic[:0]
	os.realCount = -int64(os.cfg.TriggerWarmup)
	os.events = os.events[:0]
	os.edgeSema = nil
	// 再次 Init 的时候上一轮的触发器不能再响
	os.hw.PeriodicTaskStop(realTimeTimer)
	os.hw.EdgeDisarm()
	os.trace = os.trace[:0]
	os.traceDropped = 0

	os.hw.SetPendSV(os.contextSwitch)
	if err := os.hw.PeriodicTaskInit(sleepTimer, os.runPeriodicEvents, os.cfg.SleepTickHz, os.cfg.SleepPriority); err != nil {
		return fmt.Errorf("init sleep timer: %w", err)
	}

	log.WithFields(log.Fields{
		"hz":          hz,
		"max_threads": os.cfg.MaxThreads,
		"stack_words": os.cfg.StackWords(),
		"scheduler":   os.cfg.Scheduler,
	}).Info("[OS] Init")
	return nil
}

// Launch 启动内核：SysTick 每 timeSlice 个总线周期中断一次，然后跑第一个线程。
// Launch 一直阻塞到内核停下来：
// Shutdown 之后返回 nil，ctx 取消之后返回 ctx.Err()，停机返回 *HaltError。
func (os *OS) Launch(ctx context.Context, timeSlice uint32) error {
	if timeSlice == 0 || timeSlice >= MaxTimeSlice {
		return fmt.Errorf("%w: %d", ErrTimeSlice, timeSlice)
	}
	if os.launched {
		return ErrLaunched
	}
	// Launch 之前就停机了（比如在主 goroutine 里调了 Wait）
	if os.stopped() {
		return os.exitErr()
	}
	if os.numThread == 0 {
		return ErrNoThreads
	}

	if err := os.hw.SysTickInit(timeSlice, os.sysTickHandler); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	os.launched = true

	log.WithFields(log.Fields{
		"time_slice": timeSlice,
		"threads":    os.numThread,
	}).Info("[OS] Launch")

	go func() {
		select {
		case <-ctx.Done():
			os.stopWith(ctx.Err())
		case <-os.stop:
		}
	}()

	first := os.run
	os.cpu.running = first
	os.tcbs[first].switches++
	os.dispatch(first)

	<-os.stop
	os.wg.Wait()

	err := os.exitErr()
	log.WithFields(log.Fields{
		"cycle": os.Time(),
		"err":   err,
	}).Info("[OS] Stopped")
	return err
}

/********* 👇 SYSTEM CALLS 👇 ***************/

// Suspend 让出 CPU：下一个线程拿到完整的时间片。
// 没有别的线程能跑的时候就是一次空操作。
func (os *OS) Suspend() {
	os.hw.SysTickReset()
	os.hw.TriggerSysTick()
	os.hw.Service()
}

// Sleep 让当前线程睡 ticks 拍（默认配置下一拍是 1ms）。Sleep(0) 就是 Suspend。
func (os *OS) Sleep(ticks uint32) {
	if os.hw.InHandler() {
		os.fatal(fmt.Errorf("%w: Sleep", ErrBlockInHandler))
	}
	if !os.launched {
		os.halt(fmt.Errorf("%w: Sleep", ErrNotLaunched), nil)
		return
	}

	status := os.hw.StartCritical()
	os.tcbs[os.run].sleep = ticks
	os.hw.EndCritical(status)

	os.Suspend()
}

// Commit 是线程的「一条指令」：走一个总线周期，到点的中断在这里被处理。
// 线程里的忙循环必须调 Commit，否则时间不会走，也不会被抢占。
func (os *OS) Commit() {
	select {
	case <-os.stop:
		runtime.Goexit()
	default:
	}
	os.hw.Step()
}

// WaitForInterrupt 即 WFI：什么也不做，等到下一个中断
func (os *OS) WaitForInterrupt() {
	select {
	case <-os.stop:
		runtime.Goexit()
	default:
	}
	os.hw.WaitForInterrupt()
}

// Time 返回 Init 以来走过的总线周期数
func (os *OS) Time() uint64 {
	return os.hw.Now() - os.epoch
}

// Shutdown 正常关机：所有线程停下来，Launch 返回 nil。
// 只能在内核里（线程、中断处理程序、Listener、板子的 alarm）调，不会返回。
func (os *OS) Shutdown() {
	log.WithField("cycle", os.Time()).Info("[OS] Shutdown")
	os.stopWith(nil)
	runtime.Goexit()
}

/********* 👆 SYSTEM CALLS 👆 ***************/

/********* 👇 HALT 👇 ***************/

func (os *OS) stopWith(err error) bool {
	first := false
	os.stopOnce.Do(func() {
		first = true
		os.stopMu.Lock()
		os.stopErr = err
		os.stopMu.Unlock()
		close(os.stop)
	})
	return first
}

func (os *OS) stopped() bool {
	select {
	case <-os.stop:
		return true
	default:
		return false
	}
}

func (os *OS) exitErr() error {
	os.stopMu.Lock()
	defer os.stopMu.Unlock()
	return os.stopErr
}

// halt 记下停机原因并叫停所有线程，halt 本身会返回
func (os *OS) halt(reason error, stack []byte) {
	var id ThreadID
	if os.cpu.running >= 0 {
		id = os.tcbs[os.cpu.running].id
	}
	h := &HaltError{
		Reason:   reason,
		ThreadID: id,
		Cycle:    os.Time(),
		Stack:    stack,
	}

	log.WithFields(log.Fields{
		"reason": reason,
		"thread": id,
		"cycle":  h.Cycle,
	}).Error("[OS] Halt")

	if os.stopWith(h) && os.haltHandler != nil {
		os.haltHandler(h)
	}
}

// fatal 停机，当前 goroutine 退出
func (os *OS) fatal(reason error) {
	os.halt(reason, nil)
	runtime.Goexit()
}

// recoverThread 把线程里的 panic 变成停机
func (os *OS) recoverThread() {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		buf = buf[:runtime.Stack(buf, false)]
		os.halt(fmt.Errorf("%w: %v", ErrPanic, r), buf)
	}
}

/********* 👆 HALT 👆 ***************/
