package shamrtos

import (
	log "github.com/sirupsen/logrus"
)

// Mailbox 只能放一个数据。没被取走之前再 Send 会被拒绝，旧的数据留着。
type Mailbox[T any] struct {
	os   *OS
	data T
	full bool
	// send 在有数据的时候为 1
	send Semaphore
	lost uint32
}

// NewMailbox 新建一个空邮箱
func NewMailbox[T any](os *OS) *Mailbox[T] {
	return &Mailbox[T]{
		os:   os,
		send: Semaphore{Name: "mailbox.send"},
	}
}

// Init 清空邮箱和拒收计数
func (m *Mailbox[T]) Init() {
	status := m.os.hw.StartCritical()
	defer m.os.hw.EndCritical(status)

	var zero T
	m.data = zero
	m.full = false
	m.os.InitSemaphore(&m.send, 0)
	m.lost = 0
}

// Send 放一个数据。上一个还没被取走就返回 ErrMailboxFull，Lost 加一。
// 中断处理程序里可以调。
func (m *Mailbox[T]) Send(v T) error {
	status := m.os.hw.StartCritical()
	defer m.os.hw.EndCritical(status)

	if m.full {
		m.lost++
		log.WithField("lost", m.lost).Debug("[MAILBOX] Send: full")
		return ErrMailboxFull
	}
	m.data = v
	m.full = true
	m.os.Signal(&m.send)
	return nil
}

// Recv 取走数据，没有的时候阻塞
func (m *Mailbox[T]) Recv() T {
	m.os.Wait(&m.send)

	status := m.os.hw.StartCritical()
	defer m.os.hw.EndCritical(status)

	v := m.data
	var zero T
	m.data = zero
	m.full = false
	return v
}

// Lost 是 Send 被拒绝的次数
func (m *Mailbox[T]) Lost() uint32 { return m.lost }

/********* 👇 SYSTEM CALLS 👇 ***************/

// MailBoxInit 清空内核默认的邮箱
func (os *OS) MailBoxInit() { os.mailbox.Init() }

// MailBoxSend 往内核默认的邮箱里放一个数据
func (os *OS) MailBoxSend(data uint32) error { return os.mailbox.Send(data) }

// MailBoxRecv 从内核默认的邮箱里取数据，没有的时候阻塞
func (os *OS) MailBoxRecv() uint32 { return os.mailbox.Recv() }

// MailBoxLost 是内核默认的邮箱拒收的次数
func (os *OS) MailBoxLost() uint32 { return os.mailbox.Lost() }

/********* 👆 SYSTEM CALLS 👆 ***************/
