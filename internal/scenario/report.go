package scenario

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sigurn/crc16"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"shamrtos"
	"shamrtos/board"
	"shamrtos/internal/jitter"
	"shamrtos/internal/script"
)

// Report 是一次运行的结果
type Report struct {
	Name     string
	Cycles   uint64
	Switches uint64
	Presses  uint64

	// Threads 是停下来的时候还活着的线程
	Threads []ThreadReport

	FIFOLost    uint32
	MailboxLost uint32

	Counters []Counter
	Jitter   []jitter.Stats

	Selections   int
	TraceDropped uint64
	// TraceCRC 是调度轨迹的 CRC-16/XMODEM，同一个场景每次跑出来都一样
	TraceCRC uint16
}

type ThreadReport struct {
	ID        shamrtos.ThreadID
	Script    string
	Priority  uint8
	Switches  uint64
	BlockedOn string
	Sleep     uint32
}

type Counter struct {
	Name  string
	Value uint64
}

func newReport(f *File, k *shamrtos.OS, hw *board.Sim, env *script.Env) *Report {
	trace := k.Trace()
	r := &Report{
		Name:         f.Name,
		Cycles:       k.Time(),
		Switches:     k.Switches(),
		Presses:      hw.Presses(),
		FIFOLost:     k.FifoLost(),
		MailboxLost:  k.MailBoxLost(),
		Selections:   len(trace),
		TraceDropped: k.TraceDropped(),
		TraceCRC:     Digest(trace),
	}

	for _, t := range k.Threads() {
		r.Threads = append(r.Threads, ThreadReport{
			ID:        t.ID,
			Script:    env.Names[t.ID],
			Priority:  t.Priority,
			Switches:  t.Switches,
			BlockedOn: t.BlockedOn,
			Sleep:     t.Sleep,
		})
	}

	names := maps.Keys(env.Counters)
	slices.Sort(names)
	for _, name := range names {
		r.Counters = append(r.Counters, Counter{Name: name, Value: env.Counters[name]})
	}

	recs := maps.Keys(env.Recorders)
	slices.Sort(recs)
	for _, name := range recs {
		r.Jitter = append(r.Jitter, env.Recorders[name].Stats())
	}
	return r
}

// Count 按名字找计数器，没有就是 0
func (r *Report) Count(name string) uint64 {
	i, ok := slices.BinarySearchFunc(r.Counters, name, func(c Counter, name string) int {
		return strings.Compare(c.Name, name)
	})
	if !ok {
		return 0
	}
	return r.Counters[i].Value
}

var xmodem = crc16.MakeTable(crc16.CRC16_XMODEM)

// Digest 把调度轨迹压成一个 CRC：每条选择按 kind、线程 ID、周期小端编码
func Digest(trace []shamrtos.Selection) uint16 {
	buf := make([]byte, 0, len(trace)*13)
	for _, s := range trace {
		buf = append(buf, byte(s.Kind))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.ThreadID))
		buf = binary.LittleEndian.AppendUint64(buf, s.Cycle)
	}
	return crc16.Checksum(buf, xmodem)
}

// Print 把报告打成几张表
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "scenario\t%s\n", r.Name)
	fmt.Fprintf(tw, "cycles\t%d\n", r.Cycles)
	fmt.Fprintf(tw, "switches\t%d\n", r.Switches)
	fmt.Fprintf(tw, "presses\t%d\n", r.Presses)
	fmt.Fprintf(tw, "fifo lost\t%d\n", r.FIFOLost)
	fmt.Fprintf(tw, "mailbox lost\t%d\n", r.MailboxLost)
	fmt.Fprintf(tw, "trace\t%d selections (%d dropped), crc %#04x\n", r.Selections, r.TraceDropped, r.TraceCRC)

	if len(r.Threads) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "ID\tSCRIPT\tPRIO\tSWITCHES\tSTATE")
		for _, t := range r.Threads {
			state := "ready"
			switch {
			case t.BlockedOn != "":
				state = "blocked on " + t.BlockedOn
			case t.Sleep > 0:
				state = fmt.Sprintf("sleeping %d", t.Sleep)
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", t.ID, t.Script, t.Priority, t.Switches, state)
		}
	}

	if len(r.Counters) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "COUNTER\tVALUE")
		for _, c := range r.Counters {
			fmt.Fprintf(tw, "%s\t%d\n", c.Name, c.Value)
		}
	}

	if len(r.Jitter) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "RECORDER\tPERIOD\tSAMPLES\tMEAN\tSTDDEV\tJITTER")
		for _, s := range r.Jitter {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%+.2f\t%.2f\t%.0f\n", s.Name, s.Period, s.Count, s.Mean, s.StdDev, s.Jitter)
		}
	}

	return tw.Flush()
}
