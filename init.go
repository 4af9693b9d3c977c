package shamrtos

import log "github.com/sirupsen/logrus"

func init() {
	// Setup logrus
	//log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   false,
		DisableQuote:    true,
		PadLevelText:    true,
		TimestampFormat: "15:04:05.000",
	})
	log.SetLevel(log.InfoLevel)
}

// SetLogLevel 按名字设置日志级别（Config.LogLevel）
func SetLogLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(l)
	return nil
}
