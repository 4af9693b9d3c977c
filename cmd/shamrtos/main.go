package main

import (
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shamrtos",
	Short: "Run RTOS scenarios on a simulated Cortex-M board",
	Long: `shamrtos boots the kernel on a simulated Cortex-M board and runs a YAML
scenario: semaphores, periodic and edge triggers, and thread scripts.
It prints a report with context switches, lost FIFO data, jitter and a
digest of the schedule.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogOutput()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogOutput 让日志在 Windows 终端里也有颜色，输出到管道的时候不带颜色
func setupLogOutput() {
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	log.SetOutput(colorable.NewColorableStderr())
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     tty,
		DisableColors:   !tty,
		DisableQuote:    true,
		PadLevelText:    true,
		TimestampFormat: "15:04:05.000",
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
