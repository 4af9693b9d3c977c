// Package cortexm 是唯一和 Cortex-M 寄存器布局打交道的地方：
// 给还没跑过的线程伪造一个「好像刚被中断过」的栈帧，以及把它读回来。
// 这两半是同一个约定，改一边必须改另一边。
package cortexm

import "errors"

// FrameWords 是初始栈帧占用的字数：
// 硬件自动压栈的 8 个 (R0-R3, R12, LR, PC, xPSR) + 软件保存的 8 个 (R4-R11)
const FrameWords = 16

// MinStackWords 是一个线程栈最少需要的字数。
// 除了栈帧本身，再留一点给线程自己用。
const MinStackWords = 2 * FrameWords

// PSRThumb 是 xPSR 里的 T 位，Cortex-M 只能跑 Thumb 指令，必须置 1
const PSRThumb uint32 = 0x01000000

// ErrBadFrame 表示栈指针不在栈内，或者栈帧不是 InitStack 写出来的样子
var ErrBadFrame = errors.New("bad exception frame")

// Registers 是进入 PendSV 后由软件保存的那一半寄存器
type Registers struct {
	R4, R5, R6, R7, R8, R9, R10, R11 uint32
}

// Frame 是完整的栈帧，顺序和内存中从低地址到高地址一致
type Frame struct {
	Regs Registers
	R0   uint32
	R1   uint32
	R2   uint32
	R3   uint32
	R12  uint32
	LR   uint32
	PC   uint32
	PSR  uint32
}

// 栈帧各字段相对 sp 的偏移
const (
	offR4 = iota
	offR5
	offR6
	offR7
	offR8
	offR9
	offR10
	offR11
	offR0
	offR1
	offR2
	offR3
	offR12
	offLR
	offPC
	offPSR
)

// InitStack 在 stack 的顶端写一个初始栈帧，返回 sp（R4 所在的下标）。
// 寄存器填的是一眼能认出来的假值 (0x04040404 之类)，调试的时候好找。
// 调用方保证 len(stack) >= MinStackWords。
func InitStack(stack []uint32, pc uint32) (sp int) {
	sp = len(stack) - FrameWords
	s := stack[sp:]

	s[offPSR] = PSRThumb
	s[offPC] = pc
	s[offLR] = 0x14141414
	s[offR12] = 0x12121212
	s[offR3] = 0x03030303
	s[offR2] = 0x02020202
	s[offR1] = 0x01010101
	s[offR0] = 0x00000000
	s[offR11] = 0x11111111
	s[offR10] = 0x10101010
	s[offR9] = 0x09090909
	s[offR8] = 0x08080808
	s[offR7] = 0x07070707
	s[offR6] = 0x06060606
	s[offR5] = 0x05050505
	s[offR4] = 0x04040404

	return sp
}

// Restore 从 sp 开始按 InitStack 的布局把栈帧读出来。
// 恢复路径靠它拿到 PC，所以布局不对就直接报错，不要瞎跳。
func Restore(stack []uint32, sp int) (Frame, error) {
	if sp < 0 || sp+FrameWords > len(stack) {
		return Frame{}, ErrBadFrame
	}
	s := stack[sp : sp+FrameWords]
	if s[offPSR]&PSRThumb == 0 {
		return Frame{}, ErrBadFrame
	}

	return Frame{
		Regs: Registers{
			R4:  s[offR4],
			R5:  s[offR5],
			R6:  s[offR6],
			R7:  s[offR7],
			R8:  s[offR8],
			R9:  s[offR9],
			R10: s[offR10],
			R11: s[offR11],
		},
		R0:  s[offR0],
		R1:  s[offR1],
		R2:  s[offR2],
		R3:  s[offR3],
		R12: s[offR12],
		LR:  s[offLR],
		PC:  s[offPC],
		PSR: s[offPSR],
	}, nil
}

// 线程入口的「代码地址」。
// 模拟里没有真的 flash，给每个 TCB 槽位编一个假的地址，Restore 出来再反查。
const (
	codeBase    uint32 = 0x00000800
	entryStride uint32 = 0x40
)

// EntryPC 返回槽位 slot 的入口地址
func EntryPC(slot int) uint32 {
	return codeBase + uint32(slot)*entryStride
}

// SlotOf 是 EntryPC 的反函数。pc 不是任何槽位的入口时 ok 为 false。
func SlotOf(pc uint32) (slot int, ok bool) {
	if pc < codeBase || (pc-codeBase)%entryStride != 0 {
		return 0, false
	}
	return int((pc - codeBase) / entryStride), true
}
