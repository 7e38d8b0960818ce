package handler

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"trade_engine/internal/domain/entity"
	"trade_engine/internal/transport/bot/view"
	"trade_engine/pkg/logx"
)

const (
	pendingList   = "pending"
	finalizedList = "finalized"

	pageSuffix = "_page"
	timeLayout = "02.01 15:04"
)

// OnPageCallback листает списки трейдов. Формат: "<list>_page:<number>".
func (h *Handler) OnPageCallback(ctx *th.Context, query telego.CallbackQuery) error {
	list, page := parsePageData(query.Data)

	text, keyboard, err := h.renderPage(ctx, list, page)
	if err != nil {
		_ = ctx.Bot().AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID).
			WithText(view.ListError).WithShowAlert())
		return err
	}

	if query.Message != nil {
		_, err = ctx.Bot().EditMessageText(ctx, &telego.EditMessageTextParams{
			ChatID:      tu.ID(query.Message.GetChat().ID),
			MessageID:   query.Message.GetMessageID(),
			Text:        text,
			ParseMode:   telego.ModeHTML,
			ReplyMarkup: keyboard,
		})
		// Та же страница: Telegram отвечает ошибкой "message is not modified".
		if err != nil {
			logger(ctx).Debug("Page not updated", logx.Error(err))
		}
	}

	_ = ctx.Bot().AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID))

	return nil
}

// OnDialogCallback передаёт нажатие кнопки подтверждения диалогам.
func (h *Handler) OnDialogCallback(ctx *th.Context, query telego.CallbackQuery) error {
	h.dialogs.HandleCallback(ctx, query.ID, query.Data)
	return nil
}

func parsePageData(data string) (string, int) {
	list, rest, _ := strings.Cut(data, pageSuffix+":")

	var page int
	if _, err := fmt.Sscanf(rest, "%d", &page); err != nil || page < 1 {
		page = 1
	}

	if list != finalizedList {
		list = pendingList
	}

	return list, page
}

func (h *Handler) renderPage(ctx context.Context, list string, page int) (string, *telego.InlineKeyboardMarkup, error) {
	var lines []string

	switch list {
	case finalizedList:
		trades, err := h.trades.Finalized(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("trades.Finalized: %w", err)
		}
		if len(trades) == 0 {
			return view.FinalizedEmpty, nil, nil
		}
		slices.SortStableFunc(trades, func(a, b entity.FinalizedTrade) int {
			return b.FinalizedAt.Compare(a.FinalizedAt)
		})
		for _, t := range trades {
			lines = append(lines, fmt.Sprintf(view.FinalizedItem,
				t.ID.String(), t.TargetUserID, statusLabel(t), t.FinalizedAt.Format(timeLayout)))
		}
	default:
		trades, err := h.trades.Pending(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("trades.Pending: %w", err)
		}
		if len(trades) == 0 {
			return view.PendingEmpty, nil, nil
		}
		slices.SortStableFunc(trades, func(a, b entity.PendingTrade) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		for _, t := range trades {
			name := t.TemplateName
			if name == "" {
				name = t.TemplateID
			}
			lines = append(lines, fmt.Sprintf(view.PendingItem, t.ID.String(), t.TargetUserID, html.EscapeString(name)))
		}
	}

	pageLines, page, totalPages := paginate(lines, page, pageSize)

	header := view.PendingHeader
	if list == finalizedList {
		header = view.FinalizedHeader
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(header, page, totalPages))
	for _, line := range pageLines {
		sb.WriteString(line)
	}

	return sb.String(), createPaginationKeyboard(list, page, totalPages), nil
}

func statusLabel(t entity.FinalizedTrade) string {
	label := string(t.Status)
	if t.UserDeclined {
		label += ", вручную"
	}
	return label
}

// paginate возвращает страницу page (с единицы), приведённую к допустимому
// диапазону, и общее число страниц.
func paginate[T any](items []T, page, limit int) ([]T, int, int) {
	total := len(items)
	totalPages := max(1, (total+limit-1)/limit)

	page = min(max(page, 1), totalPages)

	start := (page - 1) * limit
	end := min(start+limit, total)

	return items[start:end], page, totalPages
}

func createPaginationKeyboard(list string, page, totalPages int) *telego.InlineKeyboardMarkup {
	var buttons []telego.InlineKeyboardButton

	if page > 1 {
		buttons = append(buttons, tu.InlineKeyboardButton("⬅️").
			WithCallbackData(fmt.Sprintf("%s%s:%d", list, pageSuffix, page-1)))
	}

	buttons = append(buttons, tu.InlineKeyboardButton(fmt.Sprintf("%d / %d", page, totalPages)).
		WithCallbackData("noop")) // noop = no operation

	if page < totalPages {
		buttons = append(buttons, tu.InlineKeyboardButton("➡️").
			WithCallbackData(fmt.Sprintf("%s%s:%d", list, pageSuffix, page+1)))
	}

	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(buttons...),
	)
}

func (h *Handler) OnNoop(ctx *th.Context, query telego.CallbackQuery) error {
	return ctx.Bot().AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID))
}
