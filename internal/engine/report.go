package engine

import (
	"context"

	"slguard/internal/models"
	"slguard/pkg/utils"
)

// reportFailure логирует ошибку обработки, пишет ERROR в журнал и увеличивает счётчик.
// Цикл обработки после этого продолжается.
func reportFailure(ctx context.Context, events EventLog, logger *utils.Logger, accountID, figi, source string, res HandleResult) {
	if res.OK() {
		return
	}
	RecordEventError(res.Kind)

	fields := []utils.Field{
		utils.Account(accountID),
		utils.String("source", source),
		utils.String("kind", res.Kind.String()),
		utils.Err(res.Err),
	}
	if figi != "" {
		fields = append(fields, utils.Figi(figi))
	}
	if res.Kind == KindValidation || res.Kind == KindReconciliationConflict {
		logger.Warn("event handling failed", fields...)
	} else {
		logger.Error("event handling failed", fields...)
	}

	if events == nil {
		return
	}
	err := events.LogEvent(ctx, models.EventError, accountID, figi, "", res.Err.Error(), map[string]interface{}{
		"source": source,
		"kind":   res.Kind.String(),
	})
	if err != nil {
		logger.Warn("audit write failed", utils.String("event", models.EventError), utils.Err(err))
	}
}
