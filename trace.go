package shamrtos

import (
	log "github.com/sirupsen/logrus"
)

// SelectionKind 说明一次选择是怎么来的
type SelectionKind int

const (
	SelectLaunch SelectionKind = iota
	SelectSchedule
	SelectKill
)

func (k SelectionKind) String() string {
	switch k {
	case SelectLaunch:
		return "launch"
	case SelectSchedule:
		return "schedule"
	case SelectKill:
		return "kill"
	}
	return "unknown"
}

// Selection 是调度记录里的一条：某个时刻，谁被选中去跑
type Selection struct {
	Kind     SelectionKind
	ThreadID ThreadID
	Slot     int
	Cycle    uint64
}

// Listener 在每次选择之后被调用。
// 它跑在做选择的那个线程或者中断处理程序里，可以调 Shutdown。
type Listener interface {
	Selected(os *OS, s Selection)
}

// ListenerFunc 让普通函数当 Listener 用
type ListenerFunc func(os *OS, s Selection)

func (f ListenerFunc) Selected(os *OS, s Selection) { f(os, s) }

// maxTrace 是调度记录最多保存的条数，再多就只数不记了
const maxTrace = 1 << 16

// AddListener 注册一个 Listener。在 Launch 之前调。
func (os *OS) AddListener(l Listener) {
	os.listeners = append(os.listeners, l)
}

// Trace 返回到目前为止的调度记录
func (os *OS) Trace() []Selection {
	trace := make([]Selection, len(os.trace))
	copy(trace, os.trace)
	return trace
}

// TraceDropped 是因为记录满了没记下来的选择次数
func (os *OS) TraceDropped() uint64 { return os.traceDropped }

func (os *OS) record(kind SelectionKind, slot int) {
	s := Selection{
		Kind:     kind,
		ThreadID: os.tcbs[slot].id,
		Slot:     slot,
		Cycle:    os.Time(),
	}

	if len(os.trace) < maxTrace {
		os.trace = append(os.trace, s)
	} else {
		if os.traceDropped == 0 {
			log.WithField("max", maxTrace).Warn("[SCHED] Trace full, dropping further selections")
		}
		os.traceDropped++
	}

	for _, l := range os.listeners {
		l.Selected(os, s)
	}
}
