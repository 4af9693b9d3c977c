package shamrtos

import (
	"errors"
	"testing"
)

func TestWaitFastPath(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	s := NewSemaphore("s", 2)
	var switches uint64
	shamOS.AddThread(func() {
		shamOS.Wait(s)
		shamOS.Wait(s)
		switches = shamOS.cpu.Switches
		shamOS.Shutdown()
	}, 0)
	shamOS.AddThread(idle(shamOS), 1)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	if s.Value() != 0 {
		t.Errorf("value %d, want 0", s.Value())
	}
	if switches != 0 {
		t.Errorf("fast path should not switch, got %d switches", switches)
	}
}

func TestThreeWaitsThreeSignals(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	s := NewSemaphore("s", 0)
	park := NewSemaphore("park", 0)

	var (
		passed      []ThreadID
		valueBefore int32
		blocked     int
	)
	for i := 0; i < 3; i++ {
		shamOS.AddThread(func() {
			shamOS.Wait(s)
			passed = append(passed, shamOS.ID())
			shamOS.Wait(park)
		}, 1)
	}
	shamOS.AddThread(func() {
		valueBefore = s.Value()
		for _, ti := range shamOS.Threads() {
			if ti.BlockedOn == "s" {
				blocked++
			}
		}
		for i := 0; i < 3; i++ {
			shamOS.Signal(s)
			shamOS.Commit()
		}
		shamOS.Shutdown()
	}, 2)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}

	if valueBefore != -3 || blocked != 3 {
		t.Errorf("before signalling: value %d, blocked %d", valueBefore, blocked)
	}
	if !equalIDs(passed, []ThreadID{1, 2, 3}) {
		t.Errorf("waiters released in order %v", passed)
	}
	if s.Value() != 0 {
		t.Errorf("s ends at %d, want 0", s.Value())
	}
	if park.Value() != -3 {
		t.Errorf("park ends at %d, want -3", park.Value())
	}
}

// 先 Signal 后 Wait：第一个 Wait 直接通过，不切换；另外两个阻塞，等后面的 Signal
func TestSignalBeforeWait(t *testing.T) {
	shamOS, _ := newTestOS(t, func(cfg *Config) { cfg.MaxThreads = 5 })

	s := NewSemaphore("s", 0)
	park := NewSemaphore("park", 0)

	var (
		passed     []ThreadID
		fast       int
		midValue   int32
		midBlocked int
		midPassed  int
	)
	shamOS.AddThread(func() {
		shamOS.Signal(s)
		shamOS.Sleep(5)

		midValue = s.Value()
		for _, ti := range shamOS.Threads() {
			if ti.BlockedOn == "s" {
				midBlocked++
			}
		}
		midPassed = len(passed)

		shamOS.Signal(s)
		shamOS.Signal(s)
		shamOS.Sleep(5)
		shamOS.Shutdown()
	}, 0)
	for i := 0; i < 3; i++ {
		shamOS.AddThread(func() {
			before := shamOS.Switches()
			shamOS.Wait(s)
			if shamOS.Switches() == before {
				fast++
			}
			passed = append(passed, shamOS.ID())
			shamOS.Wait(park)
		}, 1)
	}
	shamOS.AddThread(idle(shamOS), 7)

	if err := launch(t, shamOS, 10); err != nil {
		t.Fatal(err)
	}

	if midValue != -2 || midBlocked != 2 || midPassed != 1 {
		t.Errorf("after one signal: value %d, blocked %d, passed %d", midValue, midBlocked, midPassed)
	}
	if fast != 1 {
		t.Errorf("%d waits took the fast path, want 1", fast)
	}
	if len(passed) != 3 {
		t.Errorf("passed %v", passed)
	}
	if s.Value() != 0 {
		t.Errorf("s ends at %d, want 0", s.Value())
	}
}

func TestSignalWithoutWaiters(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	s := NewSemaphore("s", 0)
	shamOS.Signal(s)
	shamOS.Signal(s)
	if s.Value() != 2 {
		t.Fatalf("value %d", s.Value())
	}

	shamOS.InitSemaphore(s, -1)
	if s.Value() != -1 {
		t.Fatalf("InitSemaphore: value %d", s.Value())
	}
}

func TestWaitInHandlerHalts(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	s := NewSemaphore("s", 1)
	if err := shamOS.AddPeriodicEventThread(func() { shamOS.Wait(s) }, 5); err != nil {
		t.Fatal(err)
	}
	shamOS.AddThread(idle(shamOS), 0)

	err := launch(t, shamOS, 1)
	var h *HaltError
	if !errors.As(err, &h) || !errors.Is(err, ErrBlockInHandler) {
		t.Fatalf("want ErrBlockInHandler, got %v", err)
	}
	if h.Cycle != 5 {
		t.Errorf("halted at cycle %d, want 5", h.Cycle)
	}
}

func TestBlockingBeforeLaunchHalts(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	s := NewSemaphore("s", 0)
	shamOS.AddThread(idle(shamOS), 0)
	shamOS.Wait(s)

	if s.Value() != 0 {
		t.Errorf("value %d, want 0", s.Value())
	}
	for _, ti := range shamOS.Threads() {
		if ti.Blocked() {
			t.Errorf("thread %d blocked on %s", ti.ID, ti.BlockedOn)
		}
	}
	err := launch(t, shamOS, 1)
	var h *HaltError
	if !errors.As(err, &h) || !errors.Is(err, ErrNotLaunched) {
		t.Fatalf("want ErrNotLaunched, got %v", err)
	}
	if h.ThreadID != 0 {
		t.Errorf("halt charged to thread %d", h.ThreadID)
	}

	// 池子是空的也一样，不会去碰 tcbs[-1]
	empty, _ := newTestOS(t, nil)
	empty.Sleep(3)
	if err := launch(t, empty, 1); !errors.Is(err, ErrNotLaunched) {
		t.Fatalf("want ErrNotLaunched, got %v", err)
	}
}

func TestFIFORoundTrip(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	var next uint32
	if err := shamOS.AddPeriodicEventThread(func() {
		if err := shamOS.FifoPut(next); err != nil {
			t.Error(err)
		}
		next++
	}, 2); err != nil {
		t.Fatal(err)
	}

	var got []uint32
	shamOS.AddThread(func() {
		for len(got) < 20 {
			got = append(got, shamOS.FifoGet())
		}
		shamOS.Shutdown()
	}, 0)
	shamOS.AddThread(idle(shamOS), 1)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("got %v", got)
		}
	}
	if shamOS.FifoLost() != 0 {
		t.Errorf("lost %d", shamOS.FifoLost())
	}
}

func TestFIFOFull(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)
	size := shamOS.Config().FIFOSize

	for i := 0; i < size; i++ {
		if err := shamOS.FifoPut(uint32(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := shamOS.FifoPut(99); !errors.Is(err, ErrFIFOFull) {
		t.Fatalf("want ErrFIFOFull, got %v", err)
	}
	if shamOS.FifoLost() != 1 {
		t.Fatalf("lost %d", shamOS.FifoLost())
	}

	var got []uint32
	shamOS.AddThread(func() {
		for i := 0; i < size; i++ {
			got = append(got, shamOS.FifoGet())
		}
		shamOS.Shutdown()
	}, 0)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != uint32(i) {
			t.Fatalf("full fifo keeps the oldest data: %v", got)
		}
	}
}

func TestFifoInit(t *testing.T) {
	shamOS, _ := newTestOS(t, func(cfg *Config) { cfg.FIFOSize = 2 })

	for i := 0; i < 3; i++ {
		shamOS.FifoPut(uint32(i))
	}
	if shamOS.FifoLost() != 1 || shamOS.fifo.Len() != 2 {
		t.Fatalf("lost %d len %d", shamOS.FifoLost(), shamOS.fifo.Len())
	}

	shamOS.FifoInit()
	if shamOS.FifoLost() != 0 || shamOS.fifo.Len() != 0 || shamOS.fifo.size.Value() != 0 {
		t.Error("FifoInit should clear the fifo")
	}
}

func TestGenericFIFO(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	f := NewFIFO[string](shamOS, 2)
	f.Init()
	if err := f.Put("a"); err != nil {
		t.Fatal(err)
	}
	if err := f.Put("b"); err != nil {
		t.Fatal(err)
	}
	if err := f.Put("c"); !errors.Is(err, ErrFIFOFull) {
		t.Fatalf("want ErrFIFOFull, got %v", err)
	}
	if f.Len() != 2 || f.Cap() != 2 || f.Lost() != 1 {
		t.Fatalf("len %d cap %d lost %d", f.Len(), f.Cap(), f.Lost())
	}

	var got []string
	shamOS.AddThread(func() {
		got = append(got, f.Get(), f.Get())
		if err := f.Put("c"); err != nil {
			t.Error(err)
		}
		got = append(got, f.Get())
		shamOS.Shutdown()
	}, 0)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("got %v", got)
	}
}

func TestMailbox(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	if err := shamOS.MailBoxSend(7); err != nil {
		t.Fatal(err)
	}
	if err := shamOS.MailBoxSend(8); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("want ErrMailboxFull, got %v", err)
	}

	var got []uint32
	shamOS.AddThread(func() {
		got = append(got, shamOS.MailBoxRecv())
		// 空邮箱：阻塞到生产者线程发过来
		got = append(got, shamOS.MailBoxRecv())
		shamOS.Shutdown()
	}, 0)
	shamOS.AddThread(func() {
		shamOS.Commit()
		if err := shamOS.MailBoxSend(9); err != nil {
			t.Error(err)
		}
		for {
			shamOS.Commit()
		}
	}, 1)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 9 {
		t.Errorf("got %v", got)
	}
	if shamOS.MailBoxLost() != 1 {
		t.Errorf("lost %d", shamOS.MailBoxLost())
	}
}

func TestMailBoxInit(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	if err := shamOS.MailBoxSend(1); err != nil {
		t.Fatal(err)
	}
	if err := shamOS.MailBoxSend(2); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("want ErrMailboxFull, got %v", err)
	}

	shamOS.MailBoxInit()
	if shamOS.MailBoxLost() != 0 {
		t.Errorf("lost %d after init", shamOS.MailBoxLost())
	}
	if err := shamOS.MailBoxSend(3); err != nil {
		t.Errorf("send after init: %v", err)
	}
}
