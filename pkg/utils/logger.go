package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Component packages derive their
// entries from the logrus standard logger via WithField("component", ...),
// so InitLogger configures that instance rather than a private one.
var Logger *logrus.Logger

// InitLogger applies the logging configuration: level, json or text
// format, and stdout or file output.
func InitLogger(level, format, output, file string) error {
	logger := logrus.StandardLogger()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)

	const timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat})
	}

	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	Logger = logger
	return nil
}

// GetLogger returns the global logger, initializing it with defaults on
// first use so early callers never see nil
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
