package middleware

import (
	"strconv"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"trade_engine/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// AdminOnly пропускает дальше только апдейты оператора и кладёт его id
// в контекст.
func AdminOnly(adminID int64) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		var userID int64

		switch {
		case update.Message != nil && update.Message.From != nil:
			userID = update.Message.From.ID
		case update.CallbackQuery != nil:
			userID = update.CallbackQuery.From.ID
		default:
			return nil
		}

		if userID != adminID {
			logger(ctx).Debug("Update from non-admin ignored", "user_id", userID)
			return nil
		}

		ctx = ctx.WithContext(contextx.WithUserID(ctx, contextx.UserID(strconv.FormatInt(userID, 10))))

		return ctx.Next(update)
	}
}
