package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"

	"gigtasks/models"
	"gigtasks/services/assignment"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ArchiveScheduler archives a rejected assignment after a delay.
type ArchiveScheduler interface {
	ArchiveLater(id uuid.UUID)
}

// Webhook handles bot updates: admin review buttons and worker commands.
type Webhook struct {
	svc      *assignment.Service
	client   *Client
	notifier *Notifier
	isAdmin  func(tgID int64) bool
	secret   string
	archiver ArchiveScheduler
}

func NewWebhook(svc *assignment.Service, client *Client, notifier *Notifier, isAdmin func(int64) bool, secret string, archiver ArchiveScheduler) *Webhook {
	return &Webhook{svc: svc, client: client, notifier: notifier, isAdmin: isAdmin, secret: secret, archiver: archiver}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != h.secret {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Telegram retries non-2xx responses, so failures are only logged
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(r.Context(), update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(r.Context(), update.Message)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Webhook) answer(ctx context.Context, q *CallbackQuery, text string) {
	if err := h.client.AnswerCallbackQuery(ctx, q.ID, text); err != nil {
		log.Warn().Err(err).Msg("answerCallbackQuery failed")
	}
}

func (h *Webhook) handleCallback(ctx context.Context, q *CallbackQuery) {
	if q.From == nil {
		return
	}
	approve, id, ok := parseCallback(q.Data)
	if !ok {
		h.answer(ctx, q, "Неизвестное действие")
		return
	}
	if !h.isAdmin(q.From.ID) {
		h.answer(ctx, q, "⛔ Нет доступа")
		return
	}

	a, err := h.svc.Review(ctx, id, q.From.ID, approve)
	if err != nil {
		log.Error().Err(err).Str("assignment_id", id.String()).Msg("review failed")
		h.answer(ctx, q, "⚠️ Ошибка, попробуйте позже")
		return
	}
	if a == nil {
		if _, err := h.svc.GetAssignment(ctx, id); errors.Is(err, assignment.ErrNotFound) {
			h.answer(ctx, q, "⚠️ Задание не найдено")
			return
		}
		h.answer(ctx, q, "⚠️ Задание уже обработано другим администратором")
		return
	}

	reviewer := strconv.FormatInt(q.From.ID, 10)
	if q.From.Username != "" {
		reviewer = "@" + q.From.Username
	}
	var caption string
	if q.Message != nil {
		caption = html.EscapeString(q.Message.Caption)
	}
	h.notifier.NotifyVerdict(ctx, a, reviewer, caption)
	if !approve && h.archiver != nil {
		h.archiver.ArchiveLater(a.ID)
	}
	h.answer(ctx, q, "Готово")
}

func (h *Webhook) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.client.SendMessage(ctx, chatID, text, nil); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("sendMessage failed")
	}
}

func (h *Webhook) handleMessage(ctx context.Context, m *Message) {
	if m.From == nil || m.From.IsBot || m.Chat == nil || m.Chat.Type != "private" {
		return
	}
	if len(m.Photo) > 0 {
		h.handleReport(ctx, m)
		return
	}

	fields := strings.Fields(m.Text)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "/start":
		w, err := h.register(ctx, m.From)
		if err != nil {
			log.Error().Err(err).Int64("tg_id", m.From.ID).Msg("register worker failed")
			h.reply(ctx, m.Chat.ID, "⚠️ Ошибка, попробуйте позже")
			return
		}
		if !h.admitted(ctx, m.Chat.ID, w) {
			return
		}
		h.reply(ctx, m.Chat.ID, "👋 Добро пожаловать! Отправьте /task, чтобы получить задание.")
	case "/task":
		h.handleTask(ctx, m, fields[1:])
	case "/current":
		h.handleCurrent(ctx, m)
	}
}

func (h *Webhook) register(ctx context.Context, u *User) (*models.User, error) {
	return h.svc.RegisterWorker(ctx, assignment.WorkerProfile{
		TgID:     u.ID,
		Username: u.Username,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	})
}

func (h *Webhook) worker(ctx context.Context, u *User) (*models.User, error) {
	w, err := h.svc.WorkerByTgID(ctx, u.ID)
	if errors.Is(err, assignment.ErrNotFound) {
		return h.register(ctx, u)
	}
	return w, err
}

// admitted tells workers without an approved registration why the bot
// ignores them.
func (h *Webhook) admitted(ctx context.Context, chatID int64, w *models.User) bool {
	switch w.ApprovalStatus {
	case models.ApprovalApproved:
		return true
	case models.ApprovalRejected:
		h.reply(ctx, chatID, "❌ В доступе отказано. Вы не прошли проверку и не можете брать задания.")
	default:
		h.reply(ctx, chatID, "⏳ Ваша заявка на регистрацию находится на проверке. Пожалуйста, подождите.")
	}
	return false
}

func (h *Webhook) handleTask(ctx context.Context, m *Message, args []string) {
	w, err := h.worker(ctx, m.From)
	if err != nil {
		log.Error().Err(err).Int64("tg_id", m.From.ID).Msg("load worker failed")
		h.reply(ctx, m.Chat.ID, "⚠️ Ошибка, попробуйте позже")
		return
	}
	if !h.admitted(ctx, m.Chat.ID, w) {
		return
	}

	var (
		a      *models.Assignment
		denial assignment.Denial
	)
	if len(args) > 0 {
		source, ok := assignment.ParseSource(args[0])
		if !ok {
			h.reply(ctx, m.Chat.ID, "Укажите площадку: yandex, google или 2gis")
			return
		}
		f := assignment.Filter{Source: source}
		if w.Gender != nil {
			f.Gender = *w.Gender
		}
		a, denial, err = h.svc.Assign(ctx, w.ID, f)
	} else {
		a, denial, err = h.svc.AssignAny(ctx, w.ID)
	}
	if err != nil {
		log.Error().Err(err).Int64("tg_id", m.From.ID).Msg("assign failed")
		h.reply(ctx, m.Chat.ID, "⚠️ Ошибка, попробуйте позже")
		return
	}
	if denial != "" {
		h.reply(ctx, m.Chat.ID, denialText(denial))
		return
	}

	cur, err := h.svc.CurrentAssignment(ctx, w.ID)
	if err != nil {
		log.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("load new assignment failed")
		return
	}
	h.reply(ctx, m.Chat.ID, taskText(cur.Task))
}

func (h *Webhook) handleCurrent(ctx context.Context, m *Message) {
	w, err := h.svc.WorkerByTgID(ctx, m.From.ID)
	if err == nil {
		if !h.admitted(ctx, m.Chat.ID, w) {
			return
		}
		var a *models.Assignment
		if a, err = h.svc.ActiveAssignment(ctx, w.ID); err == nil {
			text := taskText(a.Task)
			if a.Status == models.StatusSubmitted {
				text = "⏳ Отчёт на проверке\n\n" + text
			}
			h.reply(ctx, m.Chat.ID, text)
			return
		}
	}
	if !errors.Is(err, assignment.ErrNotFound) {
		log.Error().Err(err).Int64("tg_id", m.From.ID).Msg("load current assignment failed")
	}
	h.reply(ctx, m.Chat.ID, "У вас нет активного задания. Отправьте /task.")
}

// handleReport takes a photo with the review account name as caption.
func (h *Webhook) handleReport(ctx context.Context, m *Message) {
	accountName := strings.TrimSpace(m.Caption)
	if accountName == "" {
		h.reply(ctx, m.Chat.ID, "Добавьте к фото подпись с именем аккаунта, от которого оставлен отзыв.")
		return
	}
	w, err := h.svc.WorkerByTgID(ctx, m.From.ID)
	var a *models.Assignment
	if err == nil {
		if !h.admitted(ctx, m.Chat.ID, w) {
			return
		}
		a, err = h.svc.CurrentAssignment(ctx, w.ID)
	}
	if errors.Is(err, assignment.ErrNotFound) {
		h.reply(ctx, m.Chat.ID, "У вас нет активного задания.")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("tg_id", m.From.ID).Msg("load current assignment failed")
		return
	}

	// the last size is the largest
	photo := m.Photo[len(m.Photo)-1].FileID
	payload, err := h.svc.SubmitReport(ctx, a.ID, accountName, photo)
	switch {
	case errors.Is(err, assignment.ErrForbidden):
		h.reply(ctx, m.Chat.ID, "⛔ Ваш аккаунт заблокирован.")
		return
	case errors.Is(err, assignment.ErrInvalidState):
		h.reply(ctx, m.Chat.ID, "Отчёт по этому заданию уже отправлен.")
		return
	case err != nil:
		log.Error().Err(err).Str("assignment_id", a.ID.String()).Msg("submit report failed")
		h.reply(ctx, m.Chat.ID, "⚠️ Ошибка, попробуйте позже")
		return
	}
	if err := h.svc.SaveReportMessageID(ctx, a.ID, m.MessageID); err != nil {
		log.Warn().Err(err).Str("assignment_id", a.ID.String()).Msg("save report message id failed")
	}
	h.notifier.NotifyReport(ctx, payload)
	h.reply(ctx, m.Chat.ID, "📨 Отчёт отправлен на проверку.")
}

func denialText(d assignment.Denial) string {
	switch d {
	case assignment.DenialBlocked:
		return "⛔ Ваш аккаунт заблокирован."
	case assignment.DenialHasActive:
		return "У вас уже есть активное задание. Отправьте /current."
	case assignment.DenialSubmittedLimit:
		return "⏳ Дождитесь проверки отправленного отчёта."
	case assignment.DenialNoTasks:
		return "😔 Сейчас нет доступных заданий."
	}
	return string(d)
}

func taskText(t *models.Task) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏷 <code>%s</code>\n\n", t.HumanCode)
	fmt.Fprintf(&b, "📦 <b>ТЗ</b>:\n%s\n\n", html.EscapeString(t.Text))
	if t.ExampleText != nil {
		fmt.Fprintf(&b, "✍️ <b>Текст отзыва:</b>\n%s\n\n", html.EscapeString(*t.ExampleText))
	}
	if t.RequiredGender != nil {
		fmt.Fprintf(&b, "🗣 От какого лица: %s\n", genderText(*t.RequiredGender))
	}
	fmt.Fprintf(&b, "🔗 %s\n\nПришлите скриншот отзыва с подписью: имя аккаунта.", html.EscapeString(t.Link))
	return b.String()
}
