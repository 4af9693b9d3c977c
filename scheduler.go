package shamrtos

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Scheduler 是调度器
type Scheduler interface {
	// pick 从当前线程的下一个开始沿环走一圈（当前线程最后看），
	// 选出下一个要跑的线程。一个能跑的都没有时 ok 为 false。
	// pick 只做选择，不切换。
	pick(os *OS) (slot int, ok bool)
}

// PriorityScheduler 选能跑的线程里优先级最高的（数字最小），
// 同优先级的按环上的顺序轮转：从当前线程的下一个开始找，先遇到的先跑。
type PriorityScheduler struct{}

func (PriorityScheduler) pick(os *OS) (int, bool) {
	if os.run < 0 {
		return 0, false
	}

	best := -1
	bestPriority := 256

	p := os.run
	for i := 0; i < len(os.tcbs); i++ {
		p = os.tcbs[p].next
		t := &os.tcbs[p]
		if t.schedulable() && int(t.priority) < bestPriority {
			best, bestPriority = p, int(t.priority)
		}
		if p == os.run {
			break
		}
	}

	return best, best >= 0
}

// RoundRobinScheduler 不看优先级，环上下一个能跑的就跑
type RoundRobinScheduler struct{}

func (RoundRobinScheduler) pick(os *OS) (int, bool) {
	if os.run < 0 {
		return 0, false
	}

	p := os.run
	for i := 0; i < len(os.tcbs); i++ {
		p = os.tcbs[p].next
		if os.tcbs[p].schedulable() {
			return p, true
		}
		if p == os.run {
			break
		}
	}
	return 0, false
}

func newScheduler(name string) (Scheduler, error) {
	switch name {
	case SchedPriority, "":
		return PriorityScheduler{}, nil
	case SchedRoundRobin:
		return RoundRobinScheduler{}, nil
	}
	return nil, fmt.Errorf("unknown scheduler %q", name)
}

// sysTickHandler 是 SysTick 的处理程序：每个时间片（或者 Suspend）跑一次调度器。
// 选中的线程和当前的不一样就挂起 PendSV，真正的切换在 PendSV 里做。
func (os *OS) sysTickHandler() {
	next, ok := os.Scheduler.pick(os)
	if !ok {
		log.WithField("cycle", os.Time()).Error("[SCHED] No runnable thread")
		os.fatal(ErrNoRunnable)
	}
	if next == os.run {
		return
	}

	log.WithFields(log.Fields{
		"from":  os.tcbs[os.run].id,
		"to":    os.tcbs[next].id,
		"cycle": os.Time(),
	}).Trace("[SCHED] Schedule")

	os.run = next
	os.record(SelectSchedule, next)
	os.hw.TriggerPendSV()
}
