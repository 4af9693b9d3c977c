// Package scenario 读 YAML 场景文件：内核配置、信号量、触发器、线程脚本，
// 在模拟板上把内核跑起来，最后出一份报告。
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"shamrtos"
	"shamrtos/board"
)

var ErrScenario = errors.New("invalid scenario")

// File 是一个场景文件
type File struct {
	Name   string          `yaml:"name"`
	Kernel shamrtos.Config `yaml:"kernel"`

	// TimeSlice 是 SysTick 的重装值，单位是总线周期
	TimeSlice uint32 `yaml:"time_slice"`
	// DurationMs 之后关机，0 表示等脚本自己 stop
	DurationMs uint64 `yaml:"duration_ms"`

	Semaphores []SemaphoreSpec `yaml:"semaphores"`
	Periodic   []PeriodicSpec  `yaml:"periodic"`
	Edge       *EdgeSpec       `yaml:"edge"`
	// PressesMs 是按键被按下的时刻
	PressesMs []uint64          `yaml:"presses_ms"`
	Events    []EventSpec       `yaml:"events"`
	Recorders []RecorderSpec    `yaml:"recorders"`
	Threads   []ThreadSpec      `yaml:"threads"`
	Scripts   map[string]string `yaml:"scripts"`
}

type SemaphoreSpec struct {
	Name  string `yaml:"name"`
	Value int32  `yaml:"value"`
}

// PeriodicSpec 每 PeriodMs 毫秒 Signal 一次 Semaphore
type PeriodicSpec struct {
	Semaphore string `yaml:"semaphore"`
	PeriodMs  uint32 `yaml:"period_ms"`
}

// EdgeSpec 按键每按一下 Signal 一次 Semaphore
type EdgeSpec struct {
	Semaphore string `yaml:"semaphore"`
	Priority  uint8  `yaml:"priority"`
}

// EventSpec 是一个周期事件线程：每 Period 拍在睡眠计时器的中断里
// Signal 一次 Signal，或者给计数器 Count 加一
type EventSpec struct {
	Period uint32 `yaml:"period"`
	Signal string `yaml:"signal"`
	Count  string `yaml:"count"`
}

// RecorderSpec 是一个抖动记录器，脚本里用 mark 打点
type RecorderSpec struct {
	Name     string `yaml:"name"`
	PeriodMs uint64 `yaml:"period_ms"`
	Capacity int    `yaml:"capacity"`
}

// ThreadSpec 是 Launch 之前加进去的线程
type ThreadSpec struct {
	Script   string `yaml:"script"`
	Priority uint8  `yaml:"priority"`
}

const defaultRecorderCapacity = 1024

// Load 读场景文件
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.WithFields(log.Fields{
		"path":    path,
		"name":    f.Name,
		"threads": len(f.Threads),
		"scripts": len(f.Scripts),
	}).Debug("[SCENARIO] Loaded")
	return f, nil
}

// Parse 解析场景。kernel 里没写的字段用 shamrtos.DefaultConfig 的值，不认识的字段报错。
func Parse(data []byte) (*File, error) {
	f := &File{
		Kernel: shamrtos.DefaultConfig(),
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScenario, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate 检查场景里的名字都能对上。脚本本身在 Run 的时候编译。
func (f *File) Validate() error {
	if err := f.Kernel.Validate(); err != nil {
		return err
	}
	if f.Kernel.ClockHz < 1000 {
		return fmt.Errorf("%w: clock_hz must be at least 1000, got %d", ErrScenario, f.Kernel.ClockHz)
	}
	if f.TimeSlice == 0 || f.TimeSlice >= shamrtos.MaxTimeSlice {
		return fmt.Errorf("%w: time_slice must be in [1, %d), got %d", ErrScenario, shamrtos.MaxTimeSlice, f.TimeSlice)
	}

	sems := map[string]bool{}
	for _, s := range f.Semaphores {
		if s.Name == "" {
			return fmt.Errorf("%w: semaphore without a name", ErrScenario)
		}
		if sems[s.Name] {
			return fmt.Errorf("%w: semaphore %q defined twice", ErrScenario, s.Name)
		}
		sems[s.Name] = true
	}
	needSem := func(what, name string) error {
		if !sems[name] {
			return fmt.Errorf("%w: %s: unknown semaphore %q", ErrScenario, what, name)
		}
		return nil
	}

	for _, p := range f.Periodic {
		if err := needSem("periodic", p.Semaphore); err != nil {
			return err
		}
	}
	if f.Edge != nil {
		if err := needSem("edge", f.Edge.Semaphore); err != nil {
			return err
		}
		if f.Edge.Priority > board.MaxPriority {
			return fmt.Errorf("%w: edge priority %d > %d", ErrScenario, f.Edge.Priority, board.MaxPriority)
		}
	} else if len(f.PressesMs) > 0 {
		return fmt.Errorf("%w: presses_ms without an edge trigger", ErrScenario)
	}
	for _, e := range f.Events {
		if e.Signal == "" && e.Count == "" {
			return fmt.Errorf("%w: event needs signal or count", ErrScenario)
		}
		if e.Signal != "" {
			if err := needSem("event", e.Signal); err != nil {
				return err
			}
		}
	}

	recs := map[string]bool{}
	for _, r := range f.Recorders {
		if r.Name == "" || recs[r.Name] {
			return fmt.Errorf("%w: recorder name %q empty or duplicated", ErrScenario, r.Name)
		}
		recs[r.Name] = true
	}

	if len(f.Threads) == 0 {
		return fmt.Errorf("%w: no threads", ErrScenario)
	}
	if len(f.Threads) > f.Kernel.MaxThreads {
		return fmt.Errorf("%w: %d threads but max_threads is %d", ErrScenario, len(f.Threads), f.Kernel.MaxThreads)
	}
	for _, t := range f.Threads {
		if _, ok := f.Scripts[t.Script]; !ok {
			return fmt.Errorf("%w: thread uses unknown script %q", ErrScenario, t.Script)
		}
	}
	return nil
}

// msCycles 是一毫秒的总线周期数
func (f *File) msCycles() uint64 {
	return uint64(f.Kernel.ClockHz) / 1000
}
