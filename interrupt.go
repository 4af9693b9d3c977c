package shamrtos

import log "github.com/sirupsen/logrus"

// 下面是内核自己装的各种「中断处理程序」。
// SysTick 的在 scheduler.go，PendSV 的在 cpu.go。
// 它们都跑在被打断的线程的 goroutine 上，不能阻塞，可以 Signal。
// 这些处理程序打印的日志前面统一加 [INT] 标签

// runPeriodicEvents 是睡眠计时器的处理程序，每拍一次：
// 所有在睡的线程少睡一拍，到点的周期事件线程跑一下。
func (os *OS) runPeriodicEvents() {
	woke := false
	for i := range os.tcbs {
		t := &os.tcbs[i]
		if t.id == 0 || t.sleep == 0 {
			continue
		}
		t.sleep--
		if t.sleep == 0 && t.blockPt == nil && os.outranksRunning(t) {
			woke = true
		}
	}

	for i := range os.events {
		ev := &os.events[i]
		ev.count++
		if ev.count >= ev.period {
			ev.count = 0
			ev.fn()
		}
	}

	if woke && os.cfg.PreemptOnWake {
		log.WithField("cycle", os.Time()).Trace("[INT] Sleeper outranks running thread, reschedule")
		os.hw.TriggerSysTick()
	}
}

func (os *OS) outranksRunning(t *TCB) bool {
	if os.run < 0 {
		return false
	}
	return t.priority < os.tcbs[os.run].priority
}

// realTimeEvents 是周期触发器共用的 1kHz 定时器的处理程序。
// 计数器从 -TriggerWarmup 开始，到 0 之前谁都不发信号，让所有线程先跑一遍。
func (os *OS) realTimeEvents() {
	os.realCount++
	if os.realCount < 0 {
		return
	}

	signalled := false
	for _, p := range os.periodic {
		if os.realCount%int64(p.period) == 0 {
			os.Signal(p.sema)
			signalled = true
		}
	}
	if signalled {
		os.Suspend()
	}
}

// edgeEvent 是按键中断的处理程序：确认，发信号，关掉自己防抖。
// 要再收下一个边沿得有线程调 EdgeTriggerRestart。
func (os *OS) edgeEvent() {
	os.hw.EdgeAck()
	if os.edgeSema != nil {
		os.Signal(os.edgeSema)
	}
	os.hw.EdgeDisarm()

	log.WithField("cycle", os.Time()).Debug("[INT] Edge")
}
