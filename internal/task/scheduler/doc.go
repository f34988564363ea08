// Package scheduler owns the process-wide trigger clock: recurring cron
// schedules (robfig/cron) and one-shot delayed timers.
//
// Every registration returns a Handle. Cancelling a handle only prevents
// future triggers; a callback already running is left to finish.
package scheduler
