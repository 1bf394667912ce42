package metric

import (
	"context"
	"time"

	"learnadoodle/src-server/utils"
)

func database(as *utils.AppState, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return as.Store.Ping(ctx)
}
