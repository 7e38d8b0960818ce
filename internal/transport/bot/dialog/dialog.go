// Package dialog реализует диалоги с оператором поверх Telegram:
// подтверждения, оповещения, запрос пароля и сообщение с прогрессом.
package dialog

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"trade_engine/internal/domain/service/vault"
	"trade_engine/internal/worker"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/logx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

const (
	DefaultTimeout          = 2 * time.Minute
	DefaultProgressInterval = 2 * time.Second

	callbackPrefix = "dlg:"
)

// API is the subset of the Telegram client used by dialogs.
type API interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

type Dialogs struct {
	api    API
	chatID int64

	timeout          time.Duration
	progressInterval time.Duration

	mu       sync.Mutex
	seq      int
	confirms map[string]chan bool
	replies  []chan []byte

	progressID   int
	progressSent time.Time
}

func New(api API, chatID int64) *Dialogs {
	return &Dialogs{
		api:              api,
		chatID:           chatID,
		timeout:          DefaultTimeout,
		progressInterval: DefaultProgressInterval,
		confirms:         make(map[string]chan bool),
	}
}

func (d *Dialogs) WithTimeout(timeout time.Duration) *Dialogs {
	d.timeout = timeout
	return d
}

func (d *Dialogs) WithProgressInterval(interval time.Duration) *Dialogs {
	d.progressInterval = interval
	return d
}

func header(title, message string) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(title), html.EscapeString(message))
}

// Alert отправляет оповещение.
func (d *Dialogs) Alert(ctx context.Context, title, message string) error {
	_, err := d.api.SendMessage(ctx, tu.Message(tu.ID(d.chatID), header(title, message)).
		WithParseMode(telego.ModeHTML))
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

// Confirm задаёт вопрос с кнопками и ждёт ответа. Истечение таймаута
// считается отказом.
func (d *Dialogs) Confirm(ctx context.Context, title, message string) (bool, error) {
	d.mu.Lock()
	d.seq++
	id := strconv.Itoa(d.seq)
	answer := make(chan bool, 1)
	d.confirms[id] = answer
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.confirms, id)
		d.mu.Unlock()
	}()

	keyboard := tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("✅ Yes").WithCallbackData(callbackPrefix+id+":y"),
		tu.InlineKeyboardButton("❌ No").WithCallbackData(callbackPrefix+id+":n"),
	))

	sent, err := d.api.SendMessage(ctx, tu.Message(tu.ID(d.chatID), header(title, message)).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(keyboard))
	if err != nil {
		return false, fmt.Errorf("send confirm: %w", err)
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	var ok bool
	select {
	case ok = <-answer:
	case <-timer.C:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	verdict := "❌ Cancelled"
	if ok {
		verdict = "✅ Confirmed"
	}
	_, err = d.api.EditMessageText(context.WithoutCancel(ctx), &telego.EditMessageTextParams{
		ChatID:    tu.ID(d.chatID),
		MessageID: sent.MessageID,
		Text:      header(title, message) + "\n\n" + verdict,
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		logger(ctx).Debug("Failed to close confirm dialog", logx.Error(err))
	}

	return ok, nil
}

// HandleCallback разрешает ожидающее подтверждение. Возвращает false, если
// данные не относятся к диалогам.
func (d *Dialogs) HandleCallback(ctx context.Context, queryID, data string) bool {
	rest, found := strings.CutPrefix(data, callbackPrefix)
	if !found {
		return false
	}

	id, verdict, _ := strings.Cut(rest, ":")

	d.mu.Lock()
	answer, ok := d.confirms[id]
	if ok {
		delete(d.confirms, id)
	}
	d.mu.Unlock()

	if ok {
		answer <- verdict == "y"
	}

	text := ""
	if !ok {
		text = "Expired"
	}
	if err := d.api.AnswerCallbackQuery(ctx, tu.CallbackQuery(queryID).WithText(text)); err != nil {
		logger(ctx).Debug("Failed to answer callback", logx.Error(err))
	}

	return true
}

// PromptPassword просит ввести пароль ответом на сообщение. Сообщение с
// паролем сразу удаляется. Пустой результат означает, что оператор не
// ответил. Вызывающий владеет буфером и обнуляет его.
func (d *Dialogs) PromptPassword(ctx context.Context, title, message string) ([]byte, error) {
	reply := make(chan []byte, 1)

	d.mu.Lock()
	d.replies = append(d.replies, reply)
	d.mu.Unlock()

	defer d.dropReply(reply)

	_, err := d.api.SendMessage(ctx, tu.Message(tu.ID(d.chatID), header(title, message)).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(tu.ForceReply()))
	if err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case password := <-reply:
		return password, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dropReply снимает запрос с очереди. Ответ, пришедший после таймаута,
// обнуляется.
func (d *Dialogs) dropReply(reply chan []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range d.replies {
		if r == reply {
			d.replies = append(d.replies[:i], d.replies[i+1:]...)
			break
		}
	}

	select {
	case late := <-reply:
		vault.Zero(late)
	default:
	}
}

// AwaitingReply сообщает, ждёт ли какой-нибудь запрос ответа.
func (d *Dialogs) AwaitingReply() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.replies) > 0
}

// HandleReply отдаёт текст самому старому ожидающему запросу и удаляет
// сообщение оператора из чата. Буфер text переходит к запросу; без
// ожидающего запроса он обнуляется.
func (d *Dialogs) HandleReply(ctx context.Context, messageID int, text []byte) bool {
	d.mu.Lock()
	if len(d.replies) == 0 {
		d.mu.Unlock()
		vault.Zero(text)
		return false
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	reply <- bytes.TrimSpace(text)
	d.mu.Unlock()

	err := d.api.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(d.chatID), MessageID: messageID})
	if err != nil {
		logger(ctx).Warn("Failed to delete secret message", logx.Error(err))
	}

	return true
}

// Progress держит одно сообщение с прогрессом и редактирует его не чаще
// заданного интервала. done закрывает сообщение.
func (d *Dialogs) Progress(ctx context.Context, snap worker.ProgressSnapshot, done bool) {
	d.mu.Lock()
	msgID := d.progressID
	if msgID != 0 && !done && time.Since(d.progressSent) < d.progressInterval {
		d.mu.Unlock()
		return
	}
	d.progressSent = time.Now()
	if done {
		d.progressID = 0
	}
	d.mu.Unlock()

	text := formatProgress(snap, done)

	if msgID == 0 {
		if done {
			return
		}
		sent, err := d.api.SendMessage(ctx, tu.Message(tu.ID(d.chatID), text).WithParseMode(telego.ModeHTML))
		if err != nil {
			logger(ctx).Debug("Failed to send progress", logx.Error(err))
			return
		}
		d.mu.Lock()
		d.progressID = sent.MessageID
		d.mu.Unlock()
		return
	}

	_, err := d.api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(d.chatID),
		MessageID: msgID,
		Text:      text,
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		logger(ctx).Debug("Failed to update progress", logx.Error(err))
	}
}

func formatProgress(snap worker.ProgressSnapshot, done bool) string {
	icon := "⏳"
	if done {
		icon = "🏁"
	}
	return fmt.Sprintf("%s <b>%s</b>\n\n✅ %d  ❌ %d  🎯 %d  ⌛ %d",
		icon, html.EscapeString(snap.Message), snap.Success, snap.Failed, snap.Goal, snap.Remaining)
}
