package shamrtos

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"shamrtos/internal/cortexm"
)

// ThreadID 是线程的编号，从 1 开始顺序分配，不会复用。0 表示这个槽位是空的。
type ThreadID uint32

// Runnable 是线程要跑的东西。它自己在闭包里保存状态。
// Runnable 返回就相当于调用了 Kill。
type Runnable func()

// TCB 线程控制块。
// 所有活着的 TCB 用 next 串成一个环，调度器沿着环找下一个要跑的线程。
type TCB struct {
	id ThreadID
	// sp 是线程栈里保存的栈帧的位置（下标），线程没在跑的时候有效
	sp int
	// next 是环上下一个 TCB 的槽位
	next     int
	priority uint8
	// blockPt 非 nil 表示阻塞在这个信号量上
	blockPt *Semaphore
	// sleep 还要睡几拍，0 表示没在睡
	sleep uint32

	entry    Runnable
	permit   chan struct{}
	started  bool
	switches uint64
}

// schedulable 活着、没阻塞、没在睡
func (t *TCB) schedulable() bool {
	return t.id != 0 && t.blockPt == nil && t.sleep == 0
}

// reset 把槽位还回池子里。permit 是槽位的，不是线程的，留着。
func (t *TCB) reset() {
	permit := t.permit
	*t = TCB{permit: permit}
}

// ThreadInfo 是 TCB 对外的快照
type ThreadInfo struct {
	ID        ThreadID
	Slot      int
	Priority  uint8
	BlockedOn string
	Sleep     uint32
	Switches  uint64
	Running   bool
}

func (i ThreadInfo) Blocked() bool { return i.BlockedOn != "" }

/********* 👇 SYSTEM CALLS 👇 ***************/

// AddThread 在池子里找一个空槽位放一个新线程，返回它的 ID。
// 新线程插在当前线程前面（环的「最后」），第一个加进来的线程就是当前线程。
// Launch 之前和线程里都可以调。
func (os *OS) AddThread(entry Runnable, priority uint8) (ThreadID, error) {
	if entry == nil {
		return 0, ErrNilEntry
	}

	status := os.hw.StartCritical()
	defer os.hw.EndCritical(status)

	n := -1
	for i := range os.tcbs {
		if os.tcbs[i].id == 0 {
			n = i
			break
		}
	}
	if n < 0 {
		log.WithField("threads", os.numThread).Warn("[OS] AddThread: pool full")
		return 0, fmt.Errorf("%w: %d threads", ErrPoolFull, len(os.tcbs))
	}

	t := &os.tcbs[n]
	t.reset()
	if os.numThread == 0 {
		os.run = n
		t.next = n
	} else {
		last := os.prevOf(os.run)
		os.tcbs[last].next = n
		t.next = os.run
	}

	os.numThread++
	os.threadID++
	t.id = os.threadID
	t.priority = priority
	t.entry = entry
	t.sp = cortexm.InitStack(os.mem.Stack(n), cortexm.EntryPC(n))

	log.WithFields(log.Fields{
		"id":       t.id,
		"slot":     n,
		"priority": priority,
	}).Debug("[OS] AddThread")

	return t.id, nil
}

// AddThreads 一次加好几个同优先级的线程，只能在 Launch 之前用
func (os *OS) AddThreads(entries ...Runnable) error {
	if os.launched {
		return ErrLaunched
	}
	for _, e := range entries {
		if _, err := os.AddThread(e, 0); err != nil {
			return err
		}
	}
	return nil
}

// Kill 杀掉当前线程，槽位还回池子。不会返回。
func (os *OS) Kill() {
	if os.hw.InHandler() {
		os.fatal(fmt.Errorf("%w: Kill", ErrBlockInHandler))
	}

	os.hw.DisableInterrupts()

	os.numThread--
	if os.numThread == 0 {
		os.fatal(ErrLastThread)
	}

	dead := os.run
	killed := os.tcbs[dead].id
	os.tcbs[dead].id = 0

	// dead 还在环上，调度器从它开始绕一圈
	next, ok := os.Scheduler.pick(os)
	if !ok {
		os.fatal(ErrNoRunnable)
	}

	prev := os.prevOf(dead)
	os.tcbs[prev].next = os.tcbs[dead].next
	os.tcbs[dead].reset()

	log.WithFields(log.Fields{
		"id":   killed,
		"slot": dead,
		"next": os.tcbs[next].id,
	}).Debug("[OS] Kill")

	os.run = next
	os.cpu.exiting = true
	os.record(SelectKill, next)

	os.hw.SysTickReset()
	os.hw.TriggerPendSV()
	os.hw.EnableInterrupts()

	os.fatal(ErrKillReturned)
}

// ID 返回当前线程的 ID
func (os *OS) ID() ThreadID {
	if os.run < 0 {
		return 0
	}
	return os.tcbs[os.run].id
}

/********* 👆 SYSTEM CALLS 👆 ***************/

// prevOf 返回环上 slot 前面的那个槽位
func (os *OS) prevOf(slot int) int {
	p := slot
	for i := 0; i < len(os.tcbs); i++ {
		if os.tcbs[p].next == slot {
			return p
		}
		p = os.tcbs[p].next
	}
	panic(fmt.Sprintf("tcb ring broken at slot %d", slot))
}

// Threads 返回所有活着的线程的快照，按槽位排序。
// 在线程里调，或者 Launch 返回之后调。
func (os *OS) Threads() []ThreadInfo {
	infos := make([]ThreadInfo, 0, os.numThread)
	for i := range os.tcbs {
		t := &os.tcbs[i]
		if t.id == 0 {
			continue
		}
		info := ThreadInfo{
			ID:       t.id,
			Slot:     i,
			Priority: t.priority,
			Sleep:    t.sleep,
			Switches: t.switches,
			Running:  i == os.cpu.running,
		}
		if t.blockPt != nil {
			info.BlockedOn = t.blockPt.String()
		}
		infos = append(infos, info)
	}
	return infos
}

// Ring 返回从当前线程开始沿 next 走一圈看到的 ID
func (os *OS) Ring() []ThreadID {
	if os.run < 0 {
		return nil
	}
	ids := []ThreadID{}
	p := os.run
	for i := 0; i < len(os.tcbs); i++ {
		ids = append(ids, os.tcbs[p].id)
		p = os.tcbs[p].next
		if p == os.run {
			break
		}
	}
	return ids
}
