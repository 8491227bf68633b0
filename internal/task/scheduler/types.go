package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"planexport/internal/eventbus"
	logx "planexport/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"
}

// Job is the work a schedule triggers.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name          string
	spec          string // cron spec or @every
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for @every schedules
	running       *atomic.Bool
	runs          *atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	runCtx context.Context
	runWG  sync.WaitGroup

	// Failure warning throttling: key is schedule name.
	warnMu   sync.Mutex
	lastWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Spread  time.Duration
	Running bool
	Runs    uint64
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}

// ScheduleEvent is the bus payload of schedule.* events.
type ScheduleEvent struct {
	Name  string        `json:"name"`
	Spec  string        `json:"spec"`
	Took  time.Duration `json:"took,omitempty"`
	Error string        `json:"error,omitempty"`
}
