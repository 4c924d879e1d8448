package geofencing

import (
	"context"
	"fmt"

	"github.com/geoaware/backend/internal/logger"
	"go.uber.org/zap"
)

// Notification is a local push shown to the user
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers local notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EnteredNotification is shown once an entry has been confirmed
func EnteredNotification(f Fence) Notification {
	return Notification{
		Title: "You entered the zone!",
		Body:  fmt.Sprintf("Discover content for: %s", f.Name),
		Data:  map[string]string{"geofenceId": f.ID},
	}
}

// LogNotifier writes notifications to the application log
type LogNotifier struct{}

// Notify logs n
func (LogNotifier) Notify(_ context.Context, n Notification) error {
	logger.Log.Info("Notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Any("data", n.Data),
	)
	return nil
}
