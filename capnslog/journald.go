// +build linux

package capnslog

import (
	"github.com/coreos/go-systemd/v22/journal"
)

// JournaldFormatter sends log entries straight to the systemd journal
// instead of a stream, so that a unit's logs carry structured fields
// (syslog identifier, priority) instead of a flat text line. It is meant
// for binaries that run as systemd units; callers outside one should stick
// with StringFormatter or GlogFormatter.
type JournaldFormatter struct {
	Tag string
}

// NewJournaldFormatter returns a JournaldFormatter that tags every entry
// with tag as its syslog identifier.
func NewJournaldFormatter(tag string) *JournaldFormatter {
	return &JournaldFormatter{Tag: tag}
}

func (j *JournaldFormatter) Format(pkg string, level LogLevel, depth int, entries ...LogEntry) {
	if !journal.Enabled() {
		return
	}
	prio := journalPriority(level)
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": j.Tag,
		"CODE_PACKAGE":      pkg,
	}
	for _, e := range entries {
		msg := e.LogString()
		if err := journal.Send(msg, prio, vars); err != nil {
			// The journal is a best-effort sink; a send failure here must
			// not itself produce more log traffic.
		}
	}
}

func journalPriority(level LogLevel) journal.Priority {
	switch level {
	case CRITICAL:
		return journal.PriCrit
	case ERROR:
		return journal.PriErr
	case WARNING:
		return journal.PriWarning
	case NOTICE:
		return journal.PriNotice
	case INFO:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
