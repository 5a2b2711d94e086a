package pusher

import (
	"context"
	"fmt"
	"io"
	"time"

	"scmigrate/models"
	"scmigrate/pkg/compare"
	"scmigrate/pkg/screenconnect"
)

// SourceClient is the slice of the upstream client the bulk driver needs on
// the source instance: a live session fetch for the online check, the status
// write, and the command dispatch.
type SourceClient interface {
	GetSession(ctx context.Context, sessionID string) (*screenconnect.Session, error)
	SetStatusProperty(ctx context.Context, sessionID, status string) error
	RunCommand(ctx context.Context, sessionID, command string) error
}

// BulkOptions tunes one bulk-push invocation.
type BulkOptions struct {
	Delay    time.Duration // pause between successful pushes, not charged to skips
	MaxCount int           // stop after this many pushes; 0 means no cap
	Out      io.Writer     // per-device status lines and the final summary
}

// BulkSummary counts the outcomes of one invocation.
type BulkSummary struct {
	Pushed  int
	Skipped int
	Offline int
	Errors  int
}

// PushMissing walks the comparator's missing list and pushes the installer to
// each device that is online and not already in the migration pipeline. Each
// device gets a fresh session fetch so the online check and the skip check
// see current state, not the inventory snapshot. Errors are counted and the
// batch continues.
func (d *Dispatcher) PushMissing(ctx context.Context, client SourceClient, missing []compare.DeviceRecord, opts BulkOptions) BulkSummary {
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	var summary BulkSummary

	for _, device := range missing {
		if opts.MaxCount > 0 && summary.Pushed >= opts.MaxCount {
			fmt.Fprintf(opts.Out, "max push count %d reached, stopping\n", opts.MaxCount)
			break
		}

		sess, err := client.GetSession(ctx, device.SessionID)
		if err != nil {
			summary.Errors++
			fmt.Fprintf(opts.Out, "ERROR    %-25s %v\n", device.Name, err)
			continue
		}

		if models.IsMigrating(sess.CustomProperty(screenconnect.StatusSlot)) {
			summary.Skipped++
			fmt.Fprintf(opts.Out, "SKIPPED  %-25s already marked %s\n", device.Name, sess.CustomProperty(screenconnect.StatusSlot))
			continue
		}
		if !sess.Online() {
			summary.Offline++
			fmt.Fprintf(opts.Out, "OFFLINE  %-25s\n", device.Name)
			continue
		}

		if err := client.SetStatusProperty(ctx, device.SessionID, models.Manual().String()); err != nil {
			summary.Errors++
			fmt.Fprintf(opts.Out, "ERROR    %-25s %v\n", device.Name, err)
			continue
		}

		props := make([]string, screenconnect.NumCustomProperties-1)
		copy(props, sess.CustomPropertyValues)
		if err := d.Push(ctx, client, device.SessionID, props); err != nil {
			summary.Errors++
			fmt.Fprintf(opts.Out, "ERROR    %-25s %v\n", device.Name, err)
			continue
		}

		summary.Pushed++
		fmt.Fprintf(opts.Out, "PUSHED   %-25s\n", device.Name)

		if opts.Delay > 0 {
			select {
			case <-ctx.Done():
				fmt.Fprintf(opts.Out, "interrupted, stopping\n")
				summary.print(opts.Out)
				return summary
			case <-time.After(opts.Delay):
			}
		}
	}

	summary.print(opts.Out)
	return summary
}

func (s BulkSummary) print(w io.Writer) {
	fmt.Fprintf(w, "done: %d pushed, %d skipped, %d offline, %d errors\n",
		s.Pushed, s.Skipped, s.Offline, s.Errors)
}
