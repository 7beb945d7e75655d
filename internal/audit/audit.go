// Package audit records changes to a user's linked providers. Events go to
// the "audit" logger so they can be routed apart from request logs.
package audit

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authdata/internal/observability/logger"
)

// Eventos emitidos por el servicio de authData.
const (
	EventLinked   = "authdata.linked"
	EventUpdated  = "authdata.updated"
	EventUnlinked = "authdata.unlinked"
	EventRejected = "authdata.rejected"
)

// Log writes one audit event for userID. providers is sorted so the same
// change always produces the same record.
func Log(ctx context.Context, event, userID string, providers []string, fields ...zap.Field) {
	if len(providers) > 1 {
		providers = append([]string(nil), providers...)
		sort.Strings(providers)
	}
	all := make([]zap.Field, 0, len(fields)+3)
	all = append(all, zap.String("event", event), logger.UserID(userID), zap.Strings("providers", providers))
	all = append(all, fields...)
	logger.From(ctx).Named("audit").Info(event, all...)
}
