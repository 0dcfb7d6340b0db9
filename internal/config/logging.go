package config

import (
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging applies the log level and, when a file path is set,
// adds a rotating file hook alongside console output.
func ConfigureLogging(s Settings) error {
	log.SetLevel(s.GetLogLevel())
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	log.SetOutput(os.Stdout)

	if s.LogFilePath == "" {
		return nil
	}

	logDir := filepath.Dir(s.LogFilePath)
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return err
	}

	rotated := &lumberjack.Logger{
		Filename:   s.LogFilePath,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     s.LogMaxAgeDays,
		Compress:   true,
	}
	fileFmt := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
	log.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: rotated,
		log.FatalLevel: rotated,
		log.ErrorLevel: rotated,
		log.WarnLevel:  rotated,
		log.InfoLevel:  rotated,
		log.DebugLevel: rotated,
		log.TraceLevel: rotated,
	}, fileFmt))
	return nil
}
