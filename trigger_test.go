package shamrtos

import (
	"errors"
	"testing"
)

func TestPeriodTrigger(t *testing.T) {
	shamOS, _ := newTestOS(t, func(cfg *Config) {
		cfg.TriggerWarmup = 3
	})

	s := NewSemaphore("period", 0)
	if err := shamOS.PeriodTriggerInit(s, 5); err != nil {
		t.Fatal(err)
	}

	var at []uint64
	shamOS.AddThread(func() {
		for len(at) < 4 {
			shamOS.Wait(s)
			at = append(at, shamOS.Time())
		}
		shamOS.Shutdown()
	}, 0)
	shamOS.AddThread(idle(shamOS), 1)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}

	// 前 3ms 空转，之后每 5ms 一次
	want := []uint64{3, 8, 13, 18}
	if len(at) != len(want) {
		t.Fatalf("got %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Errorf("signal %d at %d, want %d", i, at[i], want[i])
		}
	}
}

func TestPeriodTriggerErrors(t *testing.T) {
	shamOS, _ := newTestOS(t, nil)

	if err := shamOS.PeriodTriggerInit(NewSemaphore("s", 0), 0); !errors.Is(err, ErrPeriod) {
		t.Errorf("period 0: %v", err)
	}
	for i := 0; i < shamOS.Config().MaxPeriodic; i++ {
		if err := shamOS.PeriodTriggerInit(NewSemaphore("s", 0), 10); err != nil {
			t.Fatal(err)
		}
	}
	if err := shamOS.PeriodTriggerInit(NewSemaphore("s", 0), 10); !errors.Is(err, ErrTriggerFull) {
		t.Errorf("want ErrTriggerFull, got %v", err)
	}

	if err := shamOS.AddPeriodicEventThread(nil, 1); !errors.Is(err, ErrNilEntry) {
		t.Errorf("nil event: %v", err)
	}
	if err := shamOS.AddPeriodicEventThread(func() {}, 0); !errors.Is(err, ErrPeriod) {
		t.Errorf("event period 0: %v", err)
	}
}

func TestEdgeTrigger(t *testing.T) {
	shamOS, hw := newTestOS(t, nil)

	s := NewSemaphore("edge", 0)
	if err := shamOS.EdgeTriggerInit(s, 8); !errors.Is(err, ErrPriority) {
		t.Fatalf("priority 8: %v", err)
	}
	if err := shamOS.EdgeTriggerInit(s, 2); err != nil {
		t.Fatal(err)
	}

	var at []uint64
	shamOS.AddThread(func() {
		for {
			shamOS.Wait(s)
			at = append(at, shamOS.Time())
			if len(at) == 2 {
				shamOS.Shutdown()
			}
			// 消抖：等一会儿再重新打开
			shamOS.Sleep(5)
			shamOS.EdgeTriggerRestart()
		}
	}, 0)
	shamOS.AddThread(idle(shamOS), 1)

	hw.At(10, hw.Press)
	hw.At(11, hw.Press) // 抖动
	hw.At(30, hw.Press)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}

	if len(at) != 2 || at[0] != 10 || at[1] != 30 {
		t.Errorf("edges seen at %v, want [10 30]", at)
	}
	if hw.Presses() != 3 {
		t.Errorf("presses %d", hw.Presses())
	}
	if s.Value() != 0 {
		t.Errorf("bounce leaked into the semaphore: %d", s.Value())
	}
}

func TestPeriodicEventThread(t *testing.T) {
	shamOS, hw := newTestOS(t, nil)

	n := 0
	if err := shamOS.AddPeriodicEventThread(func() { n++ }, 4); err != nil {
		t.Fatal(err)
	}
	shamOS.AddThread(idle(shamOS), 0)
	hw.At(41, shamOS.Shutdown)

	if err := launch(t, shamOS, 1); err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("event ran %d times in 40 ticks, want 10", n)
	}
}
