package geofencing

import (
	"context"

	"github.com/geoaware/backend/internal/apiclient"
)

// APIReporter sends monitor reports to the backend as the given user
type APIReporter struct {
	client *apiclient.Client
	userID string
}

// NewAPIReporter creates a reporter over an authenticated client
func NewAPIReporter(client *apiclient.Client, userID string) *APIReporter {
	return &APIReporter{client: client, userID: userID}
}

// Report posts r to /api/v1/events
func (r *APIReporter) Report(ctx context.Context, rep Report) error {
	_, err := r.client.CreateEvent(ctx, apiclient.NewEventRequest(rep.Type, r.userID, rep.FenceID, rep.Location, rep.Timestamp))
	return err
}

// SyncFences downloads the fence list and registers it with m
func SyncFences(ctx context.Context, client *apiclient.Client, m *Monitor) ([]CircularRegion, error) {
	remote, err := client.Geofences(ctx)
	if err != nil {
		return nil, err
	}

	fences := make([]Fence, 0, len(remote))
	for _, g := range remote {
		fences = append(fences, Fence{ID: g.ID, Name: g.Name, Geometry: g.Geometry})
	}
	return m.RegisterFences(fences), nil
}
