package shamrtos

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// FIFO 是中断里的生产者和线程里的消费者之间的环形队列。
// Put 从不阻塞，满了就丢掉新数据并计数；Get 在空的时候阻塞。
type FIFO[T any] struct {
	os   *OS
	buf  []T
	putI int
	getI int
	n    int
	// size 是可以 Get 的数据个数，消费者在它上面阻塞
	size Semaphore
	lost uint32
}

// NewFIFO 新建一个容量为 size 的 FIFO，空间在这里一次分配好
func NewFIFO[T any](os *OS, size int) *FIFO[T] {
	f := &FIFO[T]{
		os:   os,
		buf:  make([]T, size),
		size: Semaphore{Name: "fifo.size"},
	}
	return f
}

// Init 清空 FIFO
func (f *FIFO[T]) Init() {
	status := f.os.hw.StartCritical()
	defer f.os.hw.EndCritical(status)

	var zero T
	for i := range f.buf {
		f.buf[i] = zero
	}
	f.putI, f.getI, f.n = 0, 0, 0
	f.os.InitSemaphore(&f.size, 0)
	f.lost = 0
}

// Put 放一个数据进去。满了返回 ErrFIFOFull，数据丢掉，Lost 加一。
// 中断处理程序里可以调。
func (f *FIFO[T]) Put(v T) error {
	status := f.os.hw.StartCritical()
	defer f.os.hw.EndCritical(status)

	if f.n == len(f.buf) {
		f.lost++
		log.WithField("lost", f.lost).Debug("[FIFO] Put: full")
		return fmt.Errorf("%w: %d entries", ErrFIFOFull, len(f.buf))
	}

	f.buf[f.putI] = v
	f.putI = (f.putI + 1) % len(f.buf)
	f.n++
	f.os.Signal(&f.size)
	return nil
}

// Get 取一个数据，空的时候阻塞
func (f *FIFO[T]) Get() T {
	f.os.Wait(&f.size)

	status := f.os.hw.StartCritical()
	defer f.os.hw.EndCritical(status)

	v := f.buf[f.getI]
	var zero T
	f.buf[f.getI] = zero
	f.getI = (f.getI + 1) % len(f.buf)
	f.n--
	return v
}

// Len 是 FIFO 里现在有几个数据
func (f *FIFO[T]) Len() int { return f.n }

// Cap 是 FIFO 的容量
func (f *FIFO[T]) Cap() int { return len(f.buf) }

// Lost 是因为满了丢掉的数据个数
func (f *FIFO[T]) Lost() uint32 { return f.lost }

/********* 👇 SYSTEM CALLS 👇 ***************/

// FifoInit 清空内核默认的 FIFO
func (os *OS) FifoInit() { os.fifo.Init() }

// FifoPut 往内核默认的 FIFO 里放一个数据
func (os *OS) FifoPut(data uint32) error { return os.fifo.Put(data) }

// FifoGet 从内核默认的 FIFO 里取一个数据，空的时候阻塞
func (os *OS) FifoGet() uint32 { return os.fifo.Get() }

// FifoLost 是内核默认的 FIFO 丢掉的数据个数
func (os *OS) FifoLost() uint32 { return os.fifo.Lost() }

/********* 👆 SYSTEM CALLS 👆 ***************/
