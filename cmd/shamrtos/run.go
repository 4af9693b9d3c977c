package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/inhies/go-bytesize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shamrtos"
	"shamrtos/internal/scenario"
)

var (
	runOpts = struct {
		config     string
		logLevel   string
		stackSize  bytesize.ByteSize
		scheduler  string
		timeSlice  uint32
		pressEvery time.Duration
		timeout    time.Duration
		trace      bool
	}{}

	runCmd = &cobra.Command{
		Use:   "run SCENARIO.yaml",
		Short: "Run a scenario and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, f); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if runOpts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runOpts.timeout)
				defer cancel()
			}

			opts := scenario.Options{PressEvery: runOpts.pressEvery}
			if runOpts.trace {
				opts.Listener = shamrtos.ListenerFunc(func(_ *shamrtos.OS, s shamrtos.Selection) {
					log.WithFields(log.Fields{
						"kind":   s.Kind,
						"thread": s.ThreadID,
						"cycle":  s.Cycle,
					}).Info("[SCHED] Select")
				})
			}

			report, runErr := scenario.Run(ctx, f, opts)
			if report != nil {
				if err := report.Print(cmd.OutOrStdout()); err != nil {
					return err
				}
			}

			var halt *shamrtos.HaltError
			if errors.As(runErr, &halt) && len(halt.Stack) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", halt.Stack)
			}
			if errors.Is(runErr, context.DeadlineExceeded) {
				log.WithField("timeout", runOpts.timeout).Warn("[OS] Stopped by timeout")
				return nil
			}
			return runErr
		},
	}
)

func init() {
	runCmd.Flags().StringVarP(&runOpts.config, "config", "c", "", "kernel config YAML, replaces the scenario's kernel section")
	runCmd.Flags().StringVarP(&runOpts.logLevel, "log-level", "l", "", "log level (trace, debug, info, warn, error)")
	runCmd.Flags().Var(&runOpts.stackSize, "stack-size", "stack size of each thread, e.g. 400B or 1KB")
	runCmd.Flags().StringVar(&runOpts.scheduler, "scheduler", "", "scheduler (priority, round-robin)")
	runCmd.Flags().Uint32Var(&runOpts.timeSlice, "time-slice", 0, "SysTick reload in bus cycles")
	runCmd.Flags().DurationVar(&runOpts.pressEvery, "press-every", 0, "press the button every interval of wall-clock time")
	runCmd.Flags().DurationVar(&runOpts.timeout, "timeout", 0, "stop after this much wall-clock time")
	runCmd.Flags().BoolVar(&runOpts.trace, "trace", false, "log every scheduling decision")
}

// applyRunFlags 用命令行参数覆盖场景文件里的设置
func applyRunFlags(cmd *cobra.Command, f *scenario.File) error {
	if runOpts.config != "" {
		cfg, err := shamrtos.LoadConfig(runOpts.config)
		if err != nil {
			return err
		}
		f.Kernel = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		f.Kernel.LogLevel = runOpts.logLevel
	}
	if flags.Changed("stack-size") {
		f.Kernel.StackSize = runOpts.stackSize
	}
	if flags.Changed("scheduler") {
		f.Kernel.Scheduler = runOpts.scheduler
	}
	if flags.Changed("time-slice") {
		f.TimeSlice = runOpts.timeSlice
	}
	return f.Validate()
}
