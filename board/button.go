package board

import (
	log "github.com/sirupsen/logrus"
)

// Button 是接在 P5.1 上的按键，下降沿触发中断。
// Press 可以在任何 goroutine 里调用，模拟「外面有人按了一下」。
type Button struct {
	src source
	// flag 即 P5IFG.1：边沿来过，还没被确认
	flag    bool
	presses uint64
}

// EdgeInit 配置按键的下降沿中断，先不使能（EdgeArm 之后才会进中断）
func (b *Sim) EdgeInit(h Handler, priority uint8) error {
	if priority > MaxPriority {
		return ErrPriority
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.button.src.handler = h
	b.button.src.priority = priority
	b.button.src.pending = false
	b.button.flag = false

	log.WithField("priority", priority).Debug("[BOARD] EdgeInit")
	return nil
}

// EdgeArm 在 NVIC 里使能按键中断
func (b *Sim) EdgeArm() {
	b.mu.Lock()
	b.button.src.enabled = true
	b.mu.Unlock()
}

// EdgeDisarm 在 NVIC 里关掉按键中断，防止抖动产生一串信号
func (b *Sim) EdgeDisarm() {
	b.mu.Lock()
	b.button.src.enabled = false
	b.mu.Unlock()
}

// EdgeAck 清掉中断标志。没使能时来的边沿也一起丢掉。
func (b *Sim) EdgeAck() {
	b.mu.Lock()
	b.button.flag = false
	b.button.src.pending = false
	b.mu.Unlock()
}

// Press 产生一个下降沿
func (b *Sim) Press() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.button.presses++
	b.button.flag = true
	b.button.src.pending = true

	log.WithFields(log.Fields{
		"presses": b.button.presses,
		"armed":   b.button.src.enabled,
	}).Debug("[BOARD] Button pressed")
}

// Presses 返回按键被按过的次数
func (b *Sim) Presses() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.button.presses
}

// EdgeFlag 报告是否有还没确认的边沿
func (b *Sim) EdgeFlag() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.button.flag
}
