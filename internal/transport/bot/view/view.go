package view

const StartMessage = `🤖 <b>Trade Engine</b>

<b>Отправка</b>
/sendall — отправить трейды по всем шаблонам
/sendall <code>ID</code> — только по одному шаблону
/stop — остановить отправку
/status — состояние движка

<b>Трейды</b>
/templates — шаблоны и дневные цели
/pending — ожидающие трейды
/finalized — завершённые трейды
/reconcile — проверить статусы сейчас
/decline <code>ID</code> — отклонить исходящие трейды шаблона

<b>2FA</b>
/enroll <code>SEED</code> — сохранить секрет
/password — ввести пароль хранилища
/forget — забыть пароль
/clearsecret — удалить секрет

<b>Исключения</b>
/exclusions — пользователи с закрытыми трейдами
/unexclude <code>USER_ID</code> — убрать из исключений`

const (
	StatusTemplate = `📊 <b>Статус</b>

📤 <b>Отправка:</b> %s
🚫 <b>Отклонение:</b> %s
⏳ <b>Ожидают:</b> %d
📋 <b>Шаблонов:</b> %d
🔐 <b>Секрет 2FA:</b> %s
🔑 <b>Пароль:</b> %s`

	Running = "🟢 работает"
	Idle    = "🔴 остановлена"
	Yes     = "✅ есть"
	No      = "❌ нет"
)

const (
	SendAllStarted        = "🚀 Отправка запущена"
	SendAllAlreadyRunning = "⚠️ Отправка уже идёт"
	SendAllNotRunning     = "⚠️ Отправка не запущена"
	SendAllStopping       = "🛑 Останавливаю отправку..."
	DeclineAlreadyRunning = "⚠️ Отклонение уже идёт"
	DeclineUsage          = "❌ Использование: /decline <code>ID</code>"
	DeclineResult         = "🚫 <b>Отклонение завершено</b>\n\nВсего: %d\nОтклонено: %d\nОшибок: %d"
	DeclineStopped        = "🛑 <b>Отклонение остановлено</b>\n\nВсего: %d\nОтклонено: %d\nОшибок: %d"
)

const (
	ReconcileStarted = "🔄 Проверяю статусы..."
	ReconcileResult  = `🔄 <b>Проверка статусов</b>

⏳ Ожидало: %d
🟢 Ещё открыты: %d
🔍 Проверено: %d
🏁 Завершено: %d
🔔 Уведомлений: %d`
	ReconcileRateLimited = "\n\n⚠️ Платформа ограничила запросы, проверка прервана"
	ReconcileError       = "❌ Ошибка проверки статусов"
)

const (
	TemplatesEmpty  = "📋 Шаблонов нет"
	TemplatesHeader = "📋 <b>Шаблоны (%d)</b>\n\n"
	TemplateItem    = "• <b>%s</b> <code>%s</code>\n   🎯 %d/%d сегодня\n"

	PendingEmpty  = "⏳ Ожидающих трейдов нет"
	PendingHeader = "⏳ <b>Ожидающие трейды</b> (Стр. %d/%d)\n\n"
	PendingItem   = "• <code>%s</code> → %d (%s)\n"

	FinalizedEmpty  = "🏁 Завершённых трейдов нет"
	FinalizedHeader = "🏁 <b>Завершённые трейды</b> (Стр. %d/%d)\n\n"
	FinalizedItem   = "• <code>%s</code> → %d %s (%s)\n"

	ListError = "❌ Ошибка получения данных"
)

const (
	EnrollUsage         = "❌ Использование: /enroll <code>SEED</code>"
	EnrollPasswordTitle = "Vault Password"
	EnrollPasswordText  = "Придумайте пароль для шифрования секрета. Ответьте на это сообщение."
	EnrollSuccess       = "✅ Секрет сохранён"
	EnrollFailed        = "❌ Не удалось сохранить секрет: %s"

	PasswordTitle   = "Vault Password"
	PasswordText    = "Введите пароль хранилища. Ответьте на это сообщение."
	PasswordSaved   = "✅ Пароль принят"
	PasswordInvalid = "❌ Неверный пароль"
	PasswordNoReply = "⌛ Пароль не введён"
	PasswordNoVault = "⚠️ Секрет не сохранён, сначала /enroll"
	PasswordForgot  = "🧹 Пароль забыт"

	SecretCleared = "🧹 Секрет удалён"
)

const (
	ExclusionsEmpty  = "✅ Исключений нет"
	ExclusionsHeader = "🚫 <b>Исключения (%d)</b>\n\n"
	ExclusionItem    = "• <code>%d</code>\n"
	UnexcludeUsage   = "❌ Использование: /unexclude <code>USER_ID</code>"
	UnexcludeSuccess = "✅ Пользователь <code>%d</code> удалён из исключений"
	InvalidID        = "❌ Неверный формат ID"
	InternalError    = "❌ Внутренняя ошибка"
)
