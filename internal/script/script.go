// Package script 把场景文件里的线程脚本编译成 shamrtos.Runnable。
//
// 脚本一行一条指令，用 shell 的规则切词（引号、转义、# 注释都照 shell 来）：
//
//	wait   ready        # Wait 一个信号量
//	busy   200          # 忙 200 个总线周期
//	put    7            # 往默认 FIFO 里放 7
//	signal done
//	loop                # 回到第一行
//
// 指令在编译的时候就检查参数，跑起来的时候不会再出「不认识的指令」。
package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"

	"shamrtos"
	"shamrtos/internal/jitter"
)

var (
	ErrSyntax    = errors.New("script syntax error")
	ErrUndefined = errors.New("undefined name")
	ErrEmpty     = errors.New("empty script")
)

// Kernel 是脚本用到的那部分内核接口，*shamrtos.OS 实现了它
type Kernel interface {
	ID() shamrtos.ThreadID
	Time() uint64

	Wait(s *shamrtos.Semaphore)
	Signal(s *shamrtos.Semaphore)
	Sleep(ticks uint32)
	Suspend()
	Commit()
	WaitForInterrupt()
	Kill()
	Shutdown()
	AddThread(entry shamrtos.Runnable, priority uint8) (shamrtos.ThreadID, error)

	FifoPut(data uint32) error
	FifoGet() uint32
	MailBoxSend(data uint32) error
	MailBoxRecv() uint32
	EdgeTriggerRestart()
}

var _ Kernel = (*shamrtos.OS)(nil)

// Env 是脚本运行的环境：内核，和脚本里按名字引用的东西。
// 所有线程共用一个 Env。线程同一时刻只有一个在跑，所以不用锁。
type Env struct {
	OS         Kernel
	Semaphores map[string]*shamrtos.Semaphore
	Recorders  map[string]*jitter.Recorder
	Programs   map[string]*Program

	// Counters 是脚本里 count、put、get 之类的指令留下的计数
	Counters map[string]uint64
	// Names 记录每个线程是哪个脚本起的
	Names map[shamrtos.ThreadID]string
}

func NewEnv(k Kernel) *Env {
	return &Env{
		OS:         k,
		Semaphores: map[string]*shamrtos.Semaphore{},
		Recorders:  map[string]*jitter.Recorder{},
		Programs:   map[string]*Program{},
		Counters:   map[string]uint64{},
		Names:      map[shamrtos.ThreadID]string{},
	}
}

// Count 给计数器 name 加 n
func (env *Env) Count(name string, n uint64) {
	env.Counters[name] += n
}

// Spawn 用名为 name 的脚本起一个线程
func (env *Env) Spawn(name string, priority uint8) (shamrtos.ThreadID, error) {
	p, ok := env.Programs[name]
	if !ok {
		return 0, fmt.Errorf("%w: script %q", ErrUndefined, name)
	}
	id, err := env.OS.AddThread(p.Runnable(env), priority)
	if err != nil {
		return 0, err
	}
	env.Names[id] = name
	return id, nil
}

// Program 是编译好的脚本
type Program struct {
	Name string
	ops  []op
}

// Len 返回指令条数
func (p *Program) Len() int { return len(p.ops) }

// Ops 返回指令名，测试和日志用
func (p *Program) Ops() []string {
	names := make([]string, len(p.ops))
	for i, o := range p.ops {
		names[i] = o.name
	}
	return names
}

// Runnable 返回跑这个脚本的线程入口。每次调用得到的线程有自己的 pc。
func (p *Program) Runnable(env *Env) shamrtos.Runnable {
	return func() {
		th := &thread{}
		for th.pc < len(p.ops) {
			o := p.ops[th.pc]
			th.pc++
			o.exec(env, th)
		}
	}
}

// thread 是一个脚本线程自己的状态
type thread struct {
	pc   int
	last uint32
}

type op struct {
	line int
	name string
	// spawn 是 spawn 指令要起的脚本
	spawn string
	exec  func(env *Env, th *thread)
}

// Compile 编译脚本 src。脚本里引用的信号量和记录器必须已经在 env 里了，
// spawn 引用的脚本可以晚点再编译，用 Link 检查。
func Compile(name, src string, env *Env) (*Program, error) {
	p := &Program{Name: name}
	for i, line := range strings.Split(src, "\n") {
		words, err := shlex.Split(line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrSyntax, name, i+1, err)
		}
		if len(words) == 0 {
			continue
		}
		o, err := compileOp(words, env)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, i+1, err)
		}
		o.line = i + 1
		p.ops = append(p.ops, o)
	}
	if len(p.ops) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	return p, nil
}

// Link 检查所有脚本里 spawn 的目标都存在
func (env *Env) Link() error {
	for _, p := range env.Programs {
		for _, o := range p.ops {
			if o.spawn == "" {
				continue
			}
			if _, ok := env.Programs[o.spawn]; !ok {
				return fmt.Errorf("%w: %s:%d: script %q", ErrUndefined, p.Name, o.line, o.spawn)
			}
		}
	}
	return nil
}
