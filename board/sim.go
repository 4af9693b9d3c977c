// Package board 是一块模拟的 Cortex-M 开发板：
// 总线时钟、PRIMASK、NVIC 优先级、SysTick、PendSV、几个周期定时器和一个按键。
//
// 这里不模拟指令，只模拟「时间」和「中断」：
// 内核每做一点事就调用 Step() 走一个总线周期，到期的定时器把对应的中断挂起，
// 然后在这个指令边界上按优先级把中断处理程序跑掉。
// 中断处理程序就跑在调用 Step() 的那个 goroutine 上，
// 和真板子上 ISR 借用被打断线程的栈是一回事。
package board

import (
	"errors"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// 异常号。优先级相同时，异常号小的先跑（和 NVIC 一致）。
const (
	ExcPendSV  = 14
	ExcSysTick = 15
	excIRQBase = 16
)

// MaxPriority 是最低的优先级（NVIC 只实现了 3 位）
const MaxPriority = 7

// MaxTimers 是 PeriodicTaskInit 能用的定时器个数
const MaxTimers = 4

// MaxReload 是 SysTick 24 位计数器能装下的上限（不含）
const MaxReload = 1 << 24

var (
	ErrPriority  = errors.New("interrupt priority out of range")
	ErrFrequency = errors.New("timer frequency out of range")
	ErrNoTimer   = errors.New("no free periodic timer")
	ErrReload    = errors.New("systick reload out of range")
)

// Handler 是中断处理程序
type Handler = func()

// source 是 NVIC 里的一个中断源
type source struct {
	name     string
	exc      int
	priority uint8
	enabled  bool
	pending  bool
	handler  Handler
}

// Sim 是模拟的开发板。零值不能用，用 New 建。
type Sim struct {
	// mu 保护 pending 位和按键状态：按键可以在别的 goroutine 里按。
	// 其余的状态只有持有 CPU 的那个 goroutine 会碰。
	mu sync.Mutex

	fastestHz uint32
	hz        uint32
	clock     uint64

	primask bool
	active  bool

	pendsv  source
	systick timer
	timers  []*timer
	button  Button

	alarms []alarm
}

// ResetHz 是上电默认的总线频率，ClockInitFastest 之前用这个
const ResetHz = 3_000_000

// New 建一块板子。fastestHz 是 ClockInitFastest 能调到的最高总线频率。
func New(fastestHz uint32) *Sim {
	b := &Sim{
		fastestHz: fastestHz,
		hz:        ResetHz,
		pendsv: source{
			name:     "PendSV",
			exc:      ExcPendSV,
			priority: MaxPriority,
			enabled:  true,
		},
	}
	b.systick.src = source{
		name:     "SysTick",
		exc:      ExcSysTick,
		priority: MaxPriority,
	}
	b.button.src = source{
		name:     "PORT5",
		exc:      excIRQBase + 39,
		priority: MaxPriority,
	}
	return b
}

/********* 👇 CLOCK 👇 ***************/

// ClockInitFastest 把总线时钟调到最快，返回新的频率
func (b *Sim) ClockInitFastest() uint32 {
	b.hz = b.fastestHz
	log.WithField("hz", b.hz).Debug("[BOARD] ClockInitFastest")
	return b.hz
}

// Hz 返回当前总线频率
func (b *Sim) Hz() uint32 { return b.hz }

// Now 返回上电以来走过的总线周期数
func (b *Sim) Now() uint64 { return b.clock }

/********* 👇 PRIMASK 👇 ***************/

// DisableInterrupts 即 CPSID I
func (b *Sim) DisableInterrupts() {
	b.primask = true
}

// EnableInterrupts 即 CPSIE I。打开的瞬间挂起的中断会被处理。
func (b *Sim) EnableInterrupts() {
	b.primask = false
	b.Service()
}

// StartCritical 关中断，返回之前的 PRIMASK，交给 EndCritical 恢复。
//
//	status := b.StartCritical()
//	defer b.EndCritical(status)
func (b *Sim) StartCritical() uint32 {
	var status uint32
	if b.primask {
		status = 1
	}
	b.primask = true
	return status
}

// EndCritical 恢复 StartCritical 之前的 PRIMASK
func (b *Sim) EndCritical(status uint32) {
	if status != 0 {
		return
	}
	b.EnableInterrupts()
}

// Masked 报告中断是否被屏蔽
func (b *Sim) Masked() bool { return b.primask }

/********* 👇 EXCEPTIONS 👇 ***************/

// SetPendSV 安装 PendSV 处理程序
func (b *Sim) SetPendSV(h Handler) {
	b.pendsv.handler = h
}

// TriggerPendSV 挂起 PendSV（ICSR.PENDSVSET）
func (b *Sim) TriggerPendSV() {
	b.mu.Lock()
	b.pendsv.pending = true
	b.mu.Unlock()
}

// InHandler 报告当前是否在某个中断处理程序里
func (b *Sim) InHandler() bool { return b.active }

// ReturnFromException 是一个新线程第一次被切进来时走的路：
// 切换它的那个 PendSV 到这里就算结束了，线程模式下中断是开着的。
func (b *Sim) ReturnFromException() {
	b.active = false
	b.primask = false
	b.Service()
}

// Service 在当前指令边界上把能跑的挂起中断按优先级跑完。
// 屏蔽中断时或者已经在处理程序里时什么都不做（不支持嵌套，挂起的会咬尾执行）。
func (b *Sim) Service() {
	for {
		if b.primask || b.active {
			return
		}
		src := b.nextPending()
		if src == nil {
			return
		}

		log.WithFields(log.Fields{
			"irq":   src.name,
			"cycle": b.clock,
		}).Trace("[BOARD] Enter handler")

		b.active = true
		src.handler()
		// 如果处理程序里发生了线程切换，回到这里的是另一个线程：
		// 对板子来说，还是那一次异常返回。
		b.active = false
	}
}

// nextPending 取出优先级最高的挂起中断并清掉它的 pending 位
func (b *Sim) nextPending() *source {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best *source
	for _, src := range b.sources() {
		if !src.pending || !src.enabled || src.handler == nil {
			continue
		}
		if best == nil || src.priority < best.priority ||
			(src.priority == best.priority && src.exc < best.exc) {
			best = src
		}
	}
	if best != nil {
		best.pending = false
	}
	return best
}

func (b *Sim) sources() []*source {
	srcs := make([]*source, 0, 3+len(b.timers))
	srcs = append(srcs, &b.pendsv, &b.systick.src, &b.button.src)
	for _, t := range b.timers {
		srcs = append(srcs, &t.src)
	}
	return srcs
}

/********* 👇 TIME 👇 ***************/

// Step 走一个总线周期：定时器计数，到点的 alarm 执行，然后处理挂起的中断。
func (b *Sim) Step() {
	b.advance(1)
	b.Service()
}

// WaitForInterrupt 即 WFI：有能跑的中断就直接处理，
// 否则把时间快进到下一个定时器或 alarm 到点。
func (b *Sim) WaitForInterrupt() {
	if !b.primask && !b.active && b.hasDeliverable() {
		b.Service()
		return
	}
	n := b.cyclesToNextEvent()
	b.advance(n)
	b.Service()
}

func (b *Sim) hasDeliverable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, src := range b.sources() {
		if src.pending && src.enabled && src.handler != nil {
			return true
		}
	}
	return false
}

// cyclesToNextEvent 算出离下一次定时器溢出或 alarm 还有几个周期，至少是 1
func (b *Sim) cyclesToNextEvent() uint64 {
	var n uint64
	consider := func(c uint64) {
		if c > 0 && (n == 0 || c < n) {
			n = c
		}
	}
	if b.systick.running {
		consider(b.systick.count)
	}
	for _, t := range b.timers {
		if t.running {
			consider(t.count)
		}
	}
	if len(b.alarms) > 0 && b.alarms[0].at > b.clock {
		consider(b.alarms[0].at - b.clock)
	}
	if n == 0 {
		n = 1
	}
	return n
}

// advance 让时钟走 n 个周期，期间到期的定时器都挂起中断
func (b *Sim) advance(n uint64) {
	b.clock += n

	b.mu.Lock()
	b.systick.tick(n)
	for _, t := range b.timers {
		t.tick(n)
	}
	b.mu.Unlock()

	b.fireAlarms()
}

/********* 👇 ALARMS 👇 ***************/

// alarm 是一个挂在某个总线周期上的回调，像调试器的断点：
// 它不是中断，在 Step 里直接调用，不受 PRIMASK 影响。
type alarm struct {
	at uint64
	fn func()
}

// At 在第 cycle 个总线周期执行 fn。用来在确定的时刻按按键或者停机。
func (b *Sim) At(cycle uint64, fn func()) {
	b.alarms = append(b.alarms, alarm{at: cycle, fn: fn})
	sort.SliceStable(b.alarms, func(i, j int) bool {
		return b.alarms[i].at < b.alarms[j].at
	})
}

func (b *Sim) fireAlarms() {
	for len(b.alarms) > 0 && b.alarms[0].at <= b.clock {
		var a alarm
		a, b.alarms = b.alarms[0], b.alarms[1:]
		log.WithField("cycle", b.clock).Trace("[BOARD] Alarm")
		a.fn()
	}
}
