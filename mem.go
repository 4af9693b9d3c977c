package shamrtos

// Memory 是模拟的「内存」：所有线程栈所在的一整块，NewOS 的时候一次分配好。
// 第 n 个槽位的线程只用第 n 段，槽位复用的时候栈也跟着复用。
type Memory struct {
	words      []uint32
	stackWords int
}

// NewMemory 给 slots 个槽位各分一段 stackWords 字的栈
func NewMemory(slots, stackWords int) Memory {
	return Memory{
		words:      make([]uint32, slots*stackWords),
		stackWords: stackWords,
	}
}

// Stack 返回槽位 slot 的栈。容量卡死在这一段，append 不会写到别人的栈上。
func (m Memory) Stack(slot int) []uint32 {
	lo := slot * m.stackWords
	hi := lo + m.stackWords
	return m.words[lo:hi:hi]
}
