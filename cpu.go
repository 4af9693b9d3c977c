package shamrtos

import (
	"fmt"
	"runtime"

	log "github.com/sirupsen/logrus"

	"shamrtos/internal/cortexm"
)

// CPU 处理器：是一个模拟的「CPU」。
// 每个线程是一个 goroutine，但 CPU 在某一时刻只能跑一个东西：
// 没拿到 CPU 的线程都停在自己 TCB 的 permit 上，
// 交接 CPU 就是往下一个线程的 permit 里放一个令牌，然后自己停下。
type CPU struct {
	// running 是正在 CPU 上的 TCB 槽位。
	// 调度器的选择写在 OS.run 里，PendSV 把 running 追上 run。
	running int
	// exiting 表示 running 已经被 Kill，切走之后它的 goroutine 退出
	exiting bool
	booted  bool

	// Switches 是上下文切换的次数
	Switches uint64
}

// Switches 返回上下文切换的总次数
func (os *OS) Switches() uint64 { return os.cpu.Switches }

// contextSwitch 是 PendSV 的处理程序：把 CPU 从 running 交给 run。
// 它跑在被换下的线程的 goroutine 上，换回来的时候从 park 返回，
// 再从这次「异常」里返回到线程被打断的地方。
func (os *OS) contextSwitch() {
	from, to := os.cpu.running, os.run
	exiting := os.cpu.exiting
	if from == to && !exiting {
		return
	}

	os.cpu.exiting = false
	os.cpu.running = to
	os.cpu.Switches++
	os.tcbs[to].switches++

	log.WithFields(log.Fields{
		"from":  from,
		"to":    to,
		"cycle": os.Time(),
	}).Trace("[CPU] Switch")

	var permit chan struct{}
	if !exiting {
		permit = os.tcbs[from].permit
	}

	os.dispatch(to)

	if exiting {
		runtime.Goexit()
	}
	os.park(permit)
}

// dispatch 把 CPU 交给 slot。线程第一次跑的时候才给它起 goroutine。
// 调完 dispatch 之后调用方就不能再碰内核的状态了。
func (os *OS) dispatch(slot int) {
	t := &os.tcbs[slot]
	if !t.started {
		t.started = true
		os.wg.Add(1)
		go os.threadMain(slot)
		return
	}
	t.permit <- struct{}{}
}

// park 停在 permit 上，直到再次被 dispatch。停机的时候 goroutine 直接退出。
func (os *OS) park(permit chan struct{}) {
	select {
	case <-permit:
	case <-os.stop:
		runtime.Goexit()
	}
}

// threadMain 是线程 goroutine 的全部：
// 从初始栈帧里恢复出入口，假装从异常返回，跑 Runnable，跑完了就 Kill。
func (os *OS) threadMain(slot int) {
	defer os.wg.Done()
	defer os.recoverThread()

	if os.stopped() {
		return
	}

	t := &os.tcbs[slot]
	frame, err := cortexm.Restore(os.mem.Stack(slot), t.sp)
	if err != nil {
		os.fatal(fmt.Errorf("%w: slot %d: %v", ErrCorruptFrame, slot, err))
	}
	if pcSlot, ok := cortexm.SlotOf(frame.PC); !ok || pcSlot != slot {
		os.fatal(fmt.Errorf("%w: slot %d: pc %#x", ErrCorruptFrame, slot, frame.PC))
	}
	entry := t.entry

	log.WithFields(log.Fields{
		"id":   t.id,
		"slot": slot,
		"pc":   fmt.Sprintf("%#x", frame.PC),
	}).Debug("[CPU] Thread start")

	if !os.cpu.booted {
		os.cpu.booted = true
		os.record(SelectLaunch, slot)
	}

	os.hw.ReturnFromException()
	entry()
	os.Kill()
}
