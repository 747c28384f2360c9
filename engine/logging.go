package engine

import "github.com/sirupsen/logrus"

// Trace activates verbose per-message dispatch logging, the same
// boolean-gate idiom session.Trace uses for IEC 60870-5 wire logging.
var Trace = false

var log = logrus.StandardLogger()

func traceFields(f logrus.Fields, format string, args ...any) {
	if !Trace {
		return
	}
	log.WithFields(f).Debugf(format, args...)
}

func warnFields(f logrus.Fields, format string, args ...any) {
	log.WithFields(f).Warnf(format, args...)
}

func errorFields(f logrus.Fields, format string, args ...any) {
	log.WithFields(f).Errorf(format, args...)
}
