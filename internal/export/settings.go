package export

import (
	"errors"
	"time"
)

// Preference node and keys shared with the desktop application.
const (
	PrefsNodePath = "/instance/net.sourceforge.ganttproject/export"

	KeyRangeStart = "export-range-start"
	KeyRangeEnd   = "export-range-end"

	// Root-level keys written by the command line front end.
	KeyExportRange     = "exportRange"
	KeyCommandLine     = "commandLine"
	KeyExpandResources = "expandResources"

	OptionRangeStart = "export.range.start"
	OptionRangeEnd   = "export.range.end"
	RangeGroupID     = "export.range"

	FinalizingJob = "Finalizing"

	RangeMessage = "Start date > end date"
)

var (
	ErrNoContext     = errors.New("exporter has no context")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Chart supplies the default export range.
type Chart interface {
	StartDate() time.Time
	EndDate() time.Time
}

// Preferences is the key-value view the export settings read and write.
// *prefs.Node implements it.
type Preferences interface {
	Get(key, def string) string
	Put(key, value string) error
	GetBoolean(key string, def bool) bool
}

// Settings is built fresh for each export. Start or End is the zero time when
// it could not be determined. Start may be after End; callers decide.
type Settings struct {
	Start           time.Time
	End             time.Time
	CommandLine     bool
	ExpandResources bool
}

// Consistent reports whether both bounds are set and Start is not after End.
func (s Settings) Consistent() bool {
	return !s.Start.IsZero() && !s.End.IsZero() && !s.Start.After(s.End)
}
