package cortexm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitStackLayout(t *testing.T) {
	stack := make([]uint32, 100)
	sp := InitStack(stack, EntryPC(3))

	require.Equal(t, 100-FrameWords, sp)
	require.Equal(t, PSRThumb, stack[99], "xPSR sits at the top of the frame")
	require.Equal(t, EntryPC(3), stack[98], "PC sits right below xPSR")
	require.Equal(t, uint32(0x14141414), stack[97])
	require.Equal(t, uint32(0x04040404), stack[sp], "R4 is where sp points")
	require.Equal(t, uint32(0x11111111), stack[sp+7])
	require.Zero(t, stack[0], "nothing below the frame is touched")
}

func TestRestoreRoundTrip(t *testing.T) {
	stack := make([]uint32, MinStackWords)
	sp := InitStack(stack, EntryPC(7))

	f, err := Restore(stack, sp)
	require.NoError(t, err)
	require.Equal(t, EntryPC(7), f.PC)
	require.Equal(t, PSRThumb, f.PSR)
	require.Equal(t, uint32(0x05050505), f.Regs.R5)
	require.Equal(t, uint32(0x12121212), f.R12)

	slot, ok := SlotOf(f.PC)
	require.True(t, ok)
	require.Equal(t, 7, slot)
}

func TestRestoreRejectsCorruptFrame(t *testing.T) {
	stack := make([]uint32, MinStackWords)
	sp := InitStack(stack, EntryPC(0))

	_, err := Restore(stack, sp+1)
	require.ErrorIs(t, err, ErrBadFrame)

	_, err = Restore(stack, -1)
	require.ErrorIs(t, err, ErrBadFrame)

	stack[len(stack)-1] = 0
	_, err = Restore(stack, sp)
	require.ErrorIs(t, err, ErrBadFrame)
}

func TestSlotOf(t *testing.T) {
	for slot := 0; slot < 20; slot++ {
		got, ok := SlotOf(EntryPC(slot))
		require.True(t, ok)
		require.Equal(t, slot, got)
	}

	_, ok := SlotOf(EntryPC(1) + 2)
	require.False(t, ok)
	_, ok = SlotOf(0)
	require.False(t, ok)
}
