package board

import (
	log "github.com/sirupsen/logrus"
)

// timer 是一个向下计数、自动重装的定时器，溢出时挂起自己的中断
type timer struct {
	src     source
	period  uint64
	count   uint64
	running bool
}

// tick 让计数器走 n 个周期。调用方持有 b.mu。
func (t *timer) tick(n uint64) {
	if !t.running || t.period == 0 {
		return
	}
	if n < t.count {
		t.count -= n
		return
	}
	n -= t.count
	t.src.pending = true
	t.count = t.period - n%t.period
}

/********* 👇 SYSTICK 👇 ***************/

// SysTickInit 让 SysTick 每 reload 个总线周期中断一次，优先级最低（7）
func (b *Sim) SysTickInit(reload uint32, h Handler) error {
	if reload == 0 || reload >= MaxReload {
		return ErrReload
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.systick.src.handler = h
	b.systick.src.enabled = true
	b.systick.src.pending = false
	b.systick.period = uint64(reload)
	b.systick.count = uint64(reload)
	b.systick.running = true

	log.WithField("reload", reload).Debug("[BOARD] SysTickInit")
	return nil
}

// SysTickReset 即写 STCURRENT：下一个线程拿到完整的时间片
func (b *Sim) SysTickReset() {
	b.mu.Lock()
	b.systick.count = b.systick.period
	b.mu.Unlock()
}

// TriggerSysTick 即 ICSR.PENDSTSET：不等计数到 0，马上挂起一次 SysTick
func (b *Sim) TriggerSysTick() {
	b.mu.Lock()
	b.systick.src.pending = true
	b.mu.Unlock()
}

/********* 👇 PERIODIC TASKS 👇 ***************/

// PeriodicTaskInit 用一个空闲的定时器以 hz 的频率周期调用 h。
// 同名的定时器会被重新配置而不是再占一个。
func (b *Sim) PeriodicTaskInit(name string, h Handler, hz uint32, priority uint8) error {
	if priority > MaxPriority {
		return ErrPriority
	}
	if hz == 0 || hz > b.hz {
		return ErrFrequency
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var t *timer
	for _, tt := range b.timers {
		if tt.src.name == name {
			t = tt
			break
		}
	}
	if t == nil {
		if len(b.timers) >= MaxTimers {
			return ErrNoTimer
		}
		t = &timer{}
		t.src.name = name
		t.src.exc = excIRQBase + 25 + len(b.timers)
		b.timers = append(b.timers, t)
	}

	t.src.handler = h
	t.src.priority = priority
	t.src.enabled = true
	t.src.pending = false
	t.period = uint64(b.hz / hz)
	t.count = t.period
	t.running = true

	log.WithFields(log.Fields{
		"timer":    name,
		"period":   t.period,
		"priority": priority,
	}).Debug("[BOARD] PeriodicTaskInit")
	return nil
}

// PeriodicTaskStop 停掉名为 name 的定时器
func (b *Sim) PeriodicTaskStop(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.timers {
		if t.src.name == name {
			t.running = false
			t.src.enabled = false
			t.src.pending = false
		}
	}
}
