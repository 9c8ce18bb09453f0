package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Snapshot runs every read operation concurrently and collects the results.
// Individual failures are recorded in their Section; Snapshot itself only
// fails if ctx is cancelled before it starts.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		TakenAt:      time.Now().UTC(),
		Participant:  s.self,
		OnlineStatus: s.OnlineStatus(ctx),
		StepProgress: s.StepProgress(ctx),
	}

	// Each goroutine writes a distinct field; none returns an error so a
	// slow or failing section never cancels the others.
	var g errgroup.Group
	g.Go(func() error {
		snap.Status = sectionOf(s.Status(ctx))
		return nil
	})
	g.Go(func() error {
		snap.BackendOutput = sectionOf(s.BackendOutput(ctx))
		return nil
	})
	g.Go(func() error {
		snap.Coordinator = s.CoordinatorStatus(ctx)
		return nil
	})
	g.Go(func() error {
		snap.TrainingStatus = sectionOf(s.TrainingStatus(ctx))
		return nil
	})
	g.Go(func() error {
		snap.TrainingHistory = sectionOf(s.TrainingHistory(ctx))
		return nil
	})
	g.Go(func() error {
		snap.BatchHistory = sectionOf(s.BatchHistory(ctx))
		return nil
	})
	_ = g.Wait()

	// Read after the calls so a failover during this snapshot is reflected.
	snap.Endpoint = s.Endpoint()
	return snap, nil
}
