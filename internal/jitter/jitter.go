// Package jitter 记录周期线程每次被唤醒的时刻，算出实际周期和期望周期的偏差。
// 统计用 gonum。
package jitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Recorder 记录一个周期线程的唤醒时刻。
// 样本空间在 New 的时候分配好，Mark 不分配内存，可以在内核线程里调。
type Recorder struct {
	Name string
	// Period 是期望的周期，单位是总线周期
	Period uint64

	last    uint64
	seen    bool
	samples []float64
	dropped uint64
}

// New 建一个最多保存 capacity 个样本的 Recorder
func New(name string, period uint64, capacity int) *Recorder {
	return &Recorder{
		Name:    name,
		Period:  period,
		samples: make([]float64, 0, capacity),
	}
}

// Mark 记下一次唤醒。第一次只记时刻，从第二次开始才有样本。
func (r *Recorder) Mark(now uint64) {
	if !r.seen {
		r.seen = true
		r.last = now
		return
	}
	diff := float64(now-r.last) - float64(r.Period)
	r.last = now

	if len(r.samples) == cap(r.samples) {
		r.dropped++
		return
	}
	r.samples = append(r.samples, diff)
}

// Reset 丢掉所有样本
func (r *Recorder) Reset() {
	r.seen = false
	r.samples = r.samples[:0]
	r.dropped = 0
}

// Stats 是一组样本的统计结果，单位都是总线周期
type Stats struct {
	Name    string
	Period  uint64
	Count   int
	Dropped uint64
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
	// Jitter 是偏差绝对值的最大值
	Jitter float64
}

// Stats 算出当前的统计结果。没有样本的时候除了 Count 都是 0。
func (r *Recorder) Stats() Stats {
	s := Stats{
		Name:    r.Name,
		Period:  r.Period,
		Count:   len(r.samples),
		Dropped: r.dropped,
	}
	if len(r.samples) == 0 {
		return s
	}

	s.Mean, s.StdDev = stat.MeanStdDev(r.samples, nil)
	if len(r.samples) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(r.samples)
	s.Max = floats.Max(r.samples)
	s.Jitter = math.Max(math.Abs(s.Min), math.Abs(s.Max))
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%s: period %d, %d samples, mean %+.2f, stddev %.2f, min %+.0f, max %+.0f, jitter %.0f",
		s.Name, s.Period, s.Count, s.Mean, s.StdDev, s.Min, s.Max, s.Jitter)
}
