package logflags

import (
	"errors"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var session = false
var remote = false
var stepping = false
var symbolize = false

var logOut io.Writer
var forceColors bool

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Formatter = &logrus.TextFormatter{ForceColors: forceColors}
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Session returns true if session and mirror-state events should be logged.
func Session() bool {
	return session
}

// SessionLogger returns a logger for session and mirror-state events.
func SessionLogger() *logrus.Entry {
	return makeLogger(session, logrus.Fields{"layer": "session"})
}

// Remote returns true if wire traffic with the agent should be logged.
func Remote() bool {
	return remote
}

// RemoteLogger returns a logger for agent wire traffic.
func RemoteLogger() *logrus.Entry {
	return makeLogger(remote, logrus.Fields{"layer": "remote"})
}

// Stepping returns true if the stepping controllers should log.
func Stepping() bool {
	return stepping
}

// SteppingLogger returns a logger for the stepping controllers.
func SteppingLogger() *logrus.Entry {
	return makeLogger(stepping, logrus.Fields{"layer": "stepping"})
}

// Symbolize returns true if the symbol index should log.
func Symbolize() bool {
	return symbolize
}

// SymbolizeLogger returns a logger for the symbol index.
func SymbolizeLogger() *logrus.Entry {
	return makeLogger(symbolize, logrus.Fields{"layer": "symbolize"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets logging flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logOut = colorable.NewColorableStderr()
		forceColors = true
	}
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "session"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "session":
			session = true
		case "remote":
			remote = true
		case "stepping":
			stepping = true
		case "symbolize":
			symbolize = true
		}
	}
	return nil
}
