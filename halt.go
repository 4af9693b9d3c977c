package shamrtos

import (
	"errors"
	"fmt"
)

// 配置错误：在碰硬件之前就返回给调用方
var (
	ErrPoolFull    = errors.New("thread pool full")
	ErrNilEntry    = errors.New("nil thread entry")
	ErrLaunched    = errors.New("kernel already launched")
	ErrNoThreads   = errors.New("no threads to launch")
	ErrTimeSlice   = errors.New("time slice out of range")
	ErrPeriod      = errors.New("trigger period must be positive")
	ErrPriority    = errors.New("interrupt priority out of range")
	ErrTriggerFull = errors.New("no free periodic trigger")
	ErrFIFOFull    = errors.New("fifo full")
	ErrMailboxFull = errors.New("mailbox full")
)

// 致命错误：内核停机，Launch 返回 *HaltError
var (
	ErrLastThread     = errors.New("killed the last thread")
	ErrNoRunnable     = errors.New("no runnable thread")
	ErrBlockInHandler = errors.New("blocking call from interrupt handler")
	ErrCorruptFrame   = errors.New("corrupt initial stack frame")
	ErrPanic          = errors.New("thread panicked")
	ErrKillReturned   = errors.New("kill returned")
	ErrNotLaunched    = errors.New("blocking call before launch")
)

// HaltError 记录内核为什么停机
type HaltError struct {
	Reason   error
	ThreadID ThreadID
	Cycle    uint64
	// Stack 是出事的那个 goroutine 的栈，只有 panic 的时候有
	Stack []byte
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("kernel halted at cycle %d in thread %d: %v", e.Cycle, e.ThreadID, e.Reason)
}

func (e *HaltError) Unwrap() error { return e.Reason }

// SetHaltHandler 设置停机时的回调，它在停机的那个 goroutine 上被调用一次。
// 对应板子上的 for(;;){}，可以在这里点个灯。
func (os *OS) SetHaltHandler(h func(*HaltError)) {
	os.haltHandler = h
}
