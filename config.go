package shamrtos

import (
	"errors"
	"fmt"
	"os"

	"github.com/inhies/go-bytesize"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"shamrtos/internal/cortexm"
)

// Config 是内核的编译期常量在这里的样子：NUMTHREADS、STACKSIZE、FSIZE ...
// 全都在 NewOS 的时候定下来，之后不再分配。
type Config struct {
	// MaxThreads 是 TCB 池的大小
	MaxThreads int `yaml:"max_threads"`
	// StackSize 是每个线程栈的字节数，必须是 8 的倍数
	StackSize bytesize.ByteSize `yaml:"stack_size"`
	// FIFOSize 是内核默认 FIFO 的容量
	FIFOSize int `yaml:"fifo_size"`
	// MaxPeriodic 是 PeriodTriggerInit 能注册的周期信号个数
	MaxPeriodic int `yaml:"max_periodic"`

	// ClockHz 是板子的最高总线频率，CLI 用它建 board.Sim
	ClockHz uint32 `yaml:"clock_hz"`
	// SleepTickHz 是睡眠计时器的频率，Sleep 的单位是它的一拍
	SleepTickHz uint32 `yaml:"sleep_tick_hz"`
	// SleepPriority 是睡眠计时器的中断优先级
	SleepPriority uint8 `yaml:"sleep_priority"`
	// TriggerWarmup 是周期信号开始前空转的毫秒数，让所有线程先跑一遍
	TriggerWarmup uint32 `yaml:"trigger_warmup"`
	// PreemptOnWake 为 true 时，醒来的线程比当前线程优先级高就立刻调度，
	// 否则等到当前时间片结束
	PreemptOnWake bool `yaml:"preempt_on_wake"`

	// Scheduler: "priority" 或 "round-robin"
	Scheduler string `yaml:"scheduler"`
	// LogLevel 是 logrus 的级别名
	LogLevel string `yaml:"log_level"`
}

const (
	SchedPriority   = "priority"
	SchedRoundRobin = "round-robin"
)

// DefaultConfig 是 48MHz 板子上的默认配置：20 个线程，每个 400 字节的栈
func DefaultConfig() Config {
	return Config{
		MaxThreads:    20,
		StackSize:     400 * bytesize.B,
		FIFOSize:      10,
		MaxPeriodic:   2,
		ClockHz:       48_000_000,
		SleepTickHz:   1000,
		SleepPriority: 0,
		TriggerWarmup: 10,
		Scheduler:     SchedPriority,
		LogLevel:      "info",
	}
}

var ErrConfig = errors.New("invalid config")

// Validate 检查配置，错误都包着 ErrConfig
func (c Config) Validate() error {
	if c.MaxThreads <= 0 {
		return fmt.Errorf("%w: max_threads must be positive, got %d", ErrConfig, c.MaxThreads)
	}
	if c.StackSize < cortexm.MinStackWords*4 || c.StackSize%8 != 0 {
		return fmt.Errorf("%w: stack_size must be a multiple of 8 and at least %d bytes, got %d",
			ErrConfig, cortexm.MinStackWords*4, uint64(c.StackSize))
	}
	if c.FIFOSize <= 0 {
		return fmt.Errorf("%w: fifo_size must be positive, got %d", ErrConfig, c.FIFOSize)
	}
	if c.MaxPeriodic < 0 {
		return fmt.Errorf("%w: max_periodic must not be negative", ErrConfig)
	}
	if c.SleepTickHz == 0 {
		return fmt.Errorf("%w: sleep_tick_hz must be positive", ErrConfig)
	}
	if c.SleepPriority > 7 {
		return fmt.Errorf("%w: sleep_priority %d > 7", ErrConfig, c.SleepPriority)
	}
	if _, err := newScheduler(c.Scheduler); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// StackWords 是每个线程栈的字数
func (c Config) StackWords() int {
	return int(c.StackSize / 4)
}

// LoadConfig 从 YAML 文件读配置，没写的字段用 DefaultConfig 的值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.WithFields(log.Fields{
		"path":        path,
		"max_threads": cfg.MaxThreads,
		"stack_size":  cfg.StackSize.String(),
		"scheduler":   cfg.Scheduler,
	}).Debug("[OS] Config loaded")
	return cfg, nil
}

// MarshalYAML 把 stack_size 写成 "400.00B" 这样 LoadConfig 读得回来的样子
func (c Config) MarshalYAML() (interface{}, error) {
	type plain Config
	var n yaml.Node
	if err := n.Encode(plain(c)); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "stack_size" {
			n.Content[i+1].SetString(c.StackSize.String())
		}
	}
	return &n, nil
}
