package app

import (
	"context"
	"encoding/json"
	"errors"

	"tv-alert-mirror/internal/notify"
	"tv-alert-mirror/internal/pipeline"
	"tv-alert-mirror/internal/storage"
)

// syncClient is the slice of the fetcher the sync workflow needs.
type syncClient interface {
	FetchAlerts(ctx context.Context) ([]json.RawMessage, error)
	FetchAllFires(ctx context.Context) ([]json.RawMessage, error)
}

// Sync rebuilds the mirrored collections by querying the remote service
// directly, instead of waiting for organic page traffic.
func (a *App) Sync(ctx context.Context, opts SyncOptions) error {
	if !opts.Alerts && !opts.Logs {
		return errors.New("nothing to sync; pass --alerts and/or --logs")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sync")
	}
	if closeStore != nil {
		defer closeStore()
	}
	if err := storage.Seed(ctx, store); err != nil {
		return err
	}

	client := a.newSyncClient()
	pipe, _ := a.newPipeline(store, notify.Nop{})

	if opts.Alerts {
		if err := a.syncAlerts(ctx, client, pipe); err != nil {
			return err
		}
	}
	if opts.Logs {
		if err := a.syncLogs(ctx, client, pipe); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) syncAlerts(ctx context.Context, client syncClient, pipe *pipeline.Pipeline) error {
	raws, err := client.FetchAlerts(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("count", len(raws)).Msg("fetched remote alerts")
	return pipe.ApplyAlertList(ctx, raws)
}

func (a *App) syncLogs(ctx context.Context, client syncClient, pipe *pipeline.Pipeline) error {
	fires, err := client.FetchAllFires(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("count", len(fires)).Msg("fetched remote fires")
	return pipe.ApplyFires(ctx, fires)
}
