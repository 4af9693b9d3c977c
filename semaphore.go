package shamrtos

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Semaphore 计数信号量。
// value < 0 时 -value 就是阻塞在它上面的线程数，这些线程不排队，
// 靠 TCB.blockPt 认领。初值为 1 的就是互斥锁。
type Semaphore struct {
	Name  string
	value int32
}

// NewSemaphore 新建一个信号量。内核里的信号量也可以直接声明成零值再 InitSemaphore。
func NewSemaphore(name string, value int32) *Semaphore {
	return &Semaphore{Name: name, value: value}
}

// Value 返回信号量当前的值
func (s *Semaphore) Value() int32 { return s.value }

func (s *Semaphore) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("sema@%p", s)
}

// InitSemaphore 设置信号量的初值
func (os *OS) InitSemaphore(s *Semaphore, value int32) {
	status := os.hw.StartCritical()
	s.value = value
	os.hw.EndCritical(status)
}

// Wait 即 P 操作：减一，小于 0 就阻塞当前线程，直到被 Signal 唤醒并且重新被调度。
// 不能在中断处理程序里调，也不能在 Launch 之前调。
func (os *OS) Wait(s *Semaphore) {
	if os.hw.InHandler() {
		os.fatal(fmt.Errorf("%w: Wait(%s)", ErrBlockInHandler, s))
	}
	if !os.launched {
		os.halt(fmt.Errorf("%w: Wait(%s)", ErrNotLaunched, s), nil)
		return
	}

	status := os.hw.StartCritical()
	s.value--
	if s.value < 0 {
		os.tcbs[os.run].blockPt = s

		log.WithFields(log.Fields{
			"sema":   s.String(),
			"value":  s.value,
			"thread": os.tcbs[os.run].id,
		}).Trace("[SEM] Wait: block")

		os.hw.EndCritical(status)
		os.Suspend()
		return
	}
	os.hw.EndCritical(status)
}

// Signal 即 V 操作：加一，还有线程在等的话，
// 从当前线程的下一个开始沿环找第一个阻塞在 s 上的线程，放它走。
// 中断处理程序里也可以调。
func (os *OS) Signal(s *Semaphore) {
	status := os.hw.StartCritical()
	defer os.hw.EndCritical(status)

	s.value++
	if s.value > 0 || os.run < 0 {
		return
	}

	p := os.tcbs[os.run].next
	for i := 0; i < len(os.tcbs); i++ {
		t := &os.tcbs[p]
		if t.id != 0 && t.blockPt == s {
			t.blockPt = nil

			log.WithFields(log.Fields{
				"sema":   s.String(),
				"value":  s.value,
				"thread": t.id,
			}).Trace("[SEM] Signal: wake up")
			return
		}
		p = t.next
	}

	log.WithFields(log.Fields{
		"sema":  s.String(),
		"value": s.value,
	}).Warn("[SEM] Signal: value says someone is waiting, but nobody is")
}
