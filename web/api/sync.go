package api

import (
	"context"
	"net/http"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

// Health handles GET /api/v1/health
func Health(ctx rweb.Context) error {
	return writeSuccess(ctx, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// SyncStatus handles GET /api/v1/sync/status
// Returns the engine state plus the nodes currently flagged for
// attention.
func SyncStatus(ctx rweb.Context) error {
	status := engine.Status.Current()
	attention := tree.AttentionNodes()

	items := make([]map[string]interface{}, 0, len(attention))
	for _, n := range attention {
		items = append(items, map[string]interface{}{
			"local_id": n.LocalID,
			"name":     n.Name,
			"kind":     string(n.Kind),
			"message":  n.Attention,
		})
	}

	return writeSuccess(ctx, http.StatusOK, map[string]interface{}{
		"state":        string(status.State),
		"last_sync_at": status.LastSyncAt,
		"last_error":   status.LastError,
		"node_count":   tree.NodeCount(),
		"attention":    items,
	})
}

// TriggerSync handles POST /api/v1/sync/trigger
// Requests an immediate structure pass; coalesces with any in flight.
func TriggerSync(ctx rweb.Context) error {
	engine.Status.SetSyncing()
	engine.Structure.TriggerSync(context.Background())
	logger.Info("Structure sync triggered via API")
	return writeSuccess(ctx, http.StatusAccepted, map[string]interface{}{"triggered": true})
}

// RunSweep handles POST /api/v1/sync/sweep
// Runs a reconciliation sweep synchronously and returns its report.
func RunSweep(ctx rweb.Context) error {
	report, err := engine.SweepNow(context.Background())
	if err != nil {
		logger.LogErr(serr.Wrap(err, "on-demand sweep failed"), "sweep error")
		return writeError(ctx, http.StatusInternalServerError, "sweep failed")
	}
	return writeSuccess(ctx, http.StatusOK, report)
}

// LastSweep handles GET /api/v1/sync/sweep
func LastSweep(ctx rweb.Context) error {
	report := engine.LastSweep()
	if report == nil {
		return writeSuccess(ctx, http.StatusOK, map[string]interface{}{"ran": false})
	}
	return writeSuccess(ctx, http.StatusOK, report)
}
