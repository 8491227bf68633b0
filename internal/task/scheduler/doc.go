// Package scheduler re-runs exports on cron or interval schedules.
//
// Schedules are registered by name (re-registering a name replaces it) and
// may be added before Start; they are handed to robfig/cron once the service
// runs. A schedule never overlaps itself: a trigger that fires while the
// previous run is still busy is skipped.
package scheduler
