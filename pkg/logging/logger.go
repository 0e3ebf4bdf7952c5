package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func InitLogger(debug bool) {
	Log = logrus.New()
	Log.Out = os.Stdout

	if debug {
		Log.SetLevel(logrus.DebugLevel)
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		Log.SetLevel(logrus.InfoLevel)
		Log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Entry returns a field-less entry on the global logger, falling back to the
// logrus standard logger when InitLogger has not been called (tests, libraries).
func Entry() *logrus.Entry {
	if Log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return logrus.NewEntry(Log)
}

// ForTransfer tags log lines with the transfer id.
func ForTransfer(transferID string) *logrus.Entry {
	return Entry().WithField("transfer_id", transferID)
}
