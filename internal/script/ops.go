package script

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// arity 是每条指令要几个参数，-1 表示至少一个
var arity = map[string]int{
	"wait":    1,
	"signal":  1,
	"sleep":   1,
	"yield":   0,
	"busy":    1,
	"idle":    0,
	"put":     1,
	"get":     0,
	"send":    1,
	"recv":    0,
	"restart": 0,
	"mark":    1,
	"count":   1,
	"spawn":   2,
	"kill":    0,
	"log":     -1,
	"stop":    0,
	"loop":    0,
}

func compileOp(words []string, env *Env) (op, error) {
	name, args := words[0], words[1:]
	want, ok := arity[name]
	if !ok {
		return op{}, fmt.Errorf("%w: unknown instruction %q", ErrSyntax, name)
	}
	if (want >= 0 && len(args) != want) || (want < 0 && len(args) == 0) {
		return op{}, fmt.Errorf("%w: %s takes %s", ErrSyntax, name, argsDesc(want))
	}

	o := op{name: name}
	switch name {
	case "wait", "signal":
		s, ok := env.Semaphores[args[0]]
		if !ok {
			return op{}, fmt.Errorf("%w: semaphore %q", ErrUndefined, args[0])
		}
		if name == "wait" {
			o.exec = func(env *Env, th *thread) { env.OS.Wait(s) }
		} else {
			o.exec = func(env *Env, th *thread) { env.OS.Signal(s) }
		}

	case "sleep":
		n, err := parseUint32(args[0])
		if err != nil {
			return op{}, err
		}
		o.exec = func(env *Env, th *thread) { env.OS.Sleep(n) }

	case "yield":
		o.exec = func(env *Env, th *thread) { env.OS.Suspend() }

	case "busy":
		n, err := parseUint32(args[0])
		if err != nil {
			return op{}, err
		}
		if n == 0 {
			return op{}, fmt.Errorf("%w: busy 0", ErrSyntax)
		}
		o.exec = func(env *Env, th *thread) {
			for i := uint32(0); i < n; i++ {
				env.OS.Commit()
			}
		}

	case "idle":
		o.exec = func(env *Env, th *thread) { env.OS.WaitForInterrupt() }

	case "put":
		v, err := parseUint32(args[0])
		if err != nil {
			return op{}, err
		}
		o.exec = func(env *Env, th *thread) {
			if err := env.OS.FifoPut(v); err != nil {
				env.Count("fifo.lost", 1)
				return
			}
			env.Count("fifo.put", 1)
		}

	case "get":
		o.exec = func(env *Env, th *thread) {
			th.last = env.OS.FifoGet()
			env.Count("fifo.get", 1)
			env.Count("fifo.sum", uint64(th.last))
		}

	case "send":
		v, err := parseUint32(args[0])
		if err != nil {
			return op{}, err
		}
		o.exec = func(env *Env, th *thread) {
			if err := env.OS.MailBoxSend(v); err != nil {
				env.Count("mailbox.lost", 1)
				return
			}
			env.Count("mailbox.sent", 1)
		}

	case "recv":
		o.exec = func(env *Env, th *thread) {
			th.last = env.OS.MailBoxRecv()
			env.Count("mailbox.recv", 1)
			env.Count("mailbox.sum", uint64(th.last))
		}

	case "restart":
		o.exec = func(env *Env, th *thread) { env.OS.EdgeTriggerRestart() }

	case "mark":
		r, ok := env.Recorders[args[0]]
		if !ok {
			return op{}, fmt.Errorf("%w: recorder %q", ErrUndefined, args[0])
		}
		o.exec = func(env *Env, th *thread) { r.Mark(env.OS.Time()) }

	case "count":
		counter := args[0]
		o.exec = func(env *Env, th *thread) { env.Count(counter, 1) }

	case "spawn":
		target := args[0]
		prio, err := strconv.ParseUint(args[1], 10, 8)
		if err != nil {
			return op{}, fmt.Errorf("%w: priority %q", ErrSyntax, args[1])
		}
		o.spawn = target
		o.exec = func(env *Env, th *thread) {
			id, err := env.Spawn(target, uint8(prio))
			if err != nil {
				env.Count("spawn.failed", 1)
				log.WithFields(log.Fields{
					"script": target,
					"err":    err,
				}).Warn("[SCRIPT] spawn failed")
				return
			}
			env.Count("spawn.ok", 1)
			log.WithFields(log.Fields{
				"script": target,
				"id":     id,
			}).Debug("[SCRIPT] spawn")
		}

	case "kill":
		o.exec = func(env *Env, th *thread) { env.OS.Kill() }

	case "log":
		msg := strings.Join(args, " ")
		o.exec = func(env *Env, th *thread) {
			log.WithFields(log.Fields{
				"thread": env.OS.ID(),
				"cycle":  env.OS.Time(),
				"last":   th.last,
			}).Info("[SCRIPT] ", msg)
		}

	case "stop":
		o.exec = func(env *Env, th *thread) { env.OS.Shutdown() }

	case "loop":
		// 跳转本身也是一条指令，占一个周期
		o.exec = func(env *Env, th *thread) {
			env.OS.Commit()
			th.pc = 0
		}
	}
	return o, nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrSyntax, s)
	}
	return uint32(n), nil
}

func argsDesc(n int) string {
	switch n {
	case -1:
		return "at least 1 argument"
	case 1:
		return "1 argument"
	default:
		return strconv.Itoa(n) + " arguments"
	}
}
