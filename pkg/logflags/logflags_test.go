package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupRejectsOutputWithoutLog(t *testing.T) {
	if err := Setup(false, "remote"); err == nil {
		t.Error("expected error for --log-output without --log")
	}
}

func TestSetupEnablesComponents(t *testing.T) {
	defer func() {
		session, remote, stepping, symbolize = false, false, false, false
	}()

	if err := Setup(true, "remote,stepping"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Remote() || !Stepping() {
		t.Error("requested components not enabled")
	}
	if Session() || Symbolize() {
		t.Error("unrequested components enabled")
	}
	if RemoteLogger().Logger.Level != logrus.DebugLevel {
		t.Errorf("enabled logger at level %v", RemoteLogger().Logger.Level)
	}
	if SessionLogger().Logger.Level != logrus.PanicLevel {
		t.Errorf("disabled logger at level %v", SessionLogger().Logger.Level)
	}
}

func TestSetupDefaultsToSession(t *testing.T) {
	defer func() {
		session, remote, stepping, symbolize = false, false, false, false
	}()

	if err := Setup(true, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Session() {
		t.Error("bare --log did not enable the session component")
	}
}
