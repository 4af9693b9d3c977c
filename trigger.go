package shamrtos

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"shamrtos/board"
)

// realTimeTimer 是周期触发器共用的板载定时器
const (
	realTimeTimer = "realtime"
	realTimeHz    = 1000
)

type periodicTrigger struct {
	sema   *Semaphore
	period uint32
}

type periodicEvent struct {
	fn     func()
	period uint32
	count  uint32
}

// PeriodTriggerInit 每 periodMs 毫秒 Signal 一次 s。
// 最多 Config.MaxPeriodic 个，共用一个优先级为 0 的 1kHz 定时器。
func (os *OS) PeriodTriggerInit(s *Semaphore, periodMs uint32) error {
	if periodMs == 0 {
		return ErrPeriod
	}

	status := os.hw.StartCritical()
	defer os.hw.EndCritical(status)

	if len(os.periodic) >= os.cfg.MaxPeriodic {
		return fmt.Errorf("%w: %d in use", ErrTriggerFull, len(os.periodic))
	}
	os.periodic = append(os.periodic, periodicTrigger{sema: s, period: periodMs})

	if len(os.periodic) == 1 {
		if err := os.hw.PeriodicTaskInit(realTimeTimer, os.realTimeEvents, realTimeHz, 0); err != nil {
			os.periodic = os.periodic[:0]
			return fmt.Errorf("period trigger: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"sema":   s.String(),
		"period": periodMs,
	}).Debug("[OS] PeriodTriggerInit")
	return nil
}

// EdgeTriggerInit 按键每来一个下降沿 Signal 一次 s。
// 处理程序收到一次之后就把自己关掉，要 EdgeTriggerRestart 才会收下一次。
func (os *OS) EdgeTriggerInit(s *Semaphore, priority uint8) error {
	if priority > board.MaxPriority {
		return fmt.Errorf("%w: %d", ErrPriority, priority)
	}

	status := os.hw.StartCritical()
	defer os.hw.EndCritical(status)

	os.edgeSema = s
	if err := os.hw.EdgeInit(os.edgeEvent, priority); err != nil {
		return fmt.Errorf("edge trigger: %w", err)
	}
	os.hw.EdgeAck()
	os.hw.EdgeArm()

	log.WithFields(log.Fields{
		"sema":     s.String(),
		"priority": priority,
	}).Debug("[OS] EdgeTriggerInit")
	return nil
}

// EdgeTriggerRestart 丢掉这期间的抖动，重新打开按键中断
func (os *OS) EdgeTriggerRestart() {
	os.hw.EdgeAck()
	os.hw.EdgeArm()
}

// AddPeriodicEventThread 让 fn 每 period 拍在睡眠计时器的中断里跑一次。
// fn 跑在中断里：不能阻塞、睡眠、Kill，可以 Signal。
func (os *OS) AddPeriodicEventThread(fn func(), period uint32) error {
	if fn == nil {
		return ErrNilEntry
	}
	if period == 0 {
		return ErrPeriod
	}

	status := os.hw.StartCritical()
	defer os.hw.EndCritical(status)

	if len(os.events) >= os.cfg.MaxPeriodic {
		return fmt.Errorf("%w: %d event threads", ErrTriggerFull, len(os.events))
	}
	os.events = append(os.events, periodicEvent{fn: fn, period: period})

	log.WithField("period", period).Debug("[OS] AddPeriodicEventThread")
	return nil
}
