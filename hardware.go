package shamrtos

import "shamrtos/board"

// Hardware 是内核对开发板的全部要求。
// 内核只通过这几个「寄存器操作」碰硬件，*board.Sim 是它的模拟实现。
type Hardware interface {
	// 临界区
	StartCritical() uint32
	EndCritical(status uint32)
	DisableInterrupts()
	EnableInterrupts()

	ClockInitFastest() uint32
	Now() uint64

	// 时间片与上下文切换
	SysTickInit(reload uint32, h func()) error
	SysTickReset()
	TriggerSysTick()
	SetPendSV(h func())
	TriggerPendSV()

	// 外设中断
	PeriodicTaskInit(name string, h func(), hz uint32, priority uint8) error
	PeriodicTaskStop(name string)
	EdgeInit(h func(), priority uint8) error
	EdgeArm()
	EdgeDisarm()
	EdgeAck()

	// 指令边界
	Step()
	Service()
	InHandler() bool
	ReturnFromException()
	WaitForInterrupt()
}

var _ Hardware = (*board.Sim)(nil)
