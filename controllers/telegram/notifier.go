package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"gigtasks/models"
	"gigtasks/services/assignment"
	"gigtasks/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// MessageStore keeps track of review prompts sent to admins.
type MessageStore interface {
	SaveAdminMessage(ctx context.Context, assignmentID uuid.UUID, adminTgID, messageID int64) error
	AdminMessages(ctx context.Context, assignmentID uuid.UUID) ([]models.AdminMessage, error)
	DeleteAdminMessages(ctx context.Context, assignmentID uuid.UUID) error
}

// Notifier tells admins about new reports and workers about verdicts.
// Delivery is best effort: failures are logged and never returned.
type Notifier struct {
	client   *Client
	store    MessageStore
	adminIDs []int64
	photos   *utils.PhotoStore
}

func NewNotifier(client *Client, store MessageStore, adminIDs []int64, photos *utils.PhotoStore) *Notifier {
	return &Notifier{client: client, store: store, adminIDs: adminIDs, photos: photos}
}

func reviewKeyboard(id uuid.UUID) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{{
		{Text: "✅ Одобрить", CallbackData: callbackData(actionApprove, id)},
		{Text: "❌ Отклонить", CallbackData: callbackData(actionReject, id)},
	}}}
}

func callbackData(action string, id uuid.UUID) string {
	return "review:" + action + ":" + id.String()
}

// parseCallback splits review:<action>:<uuid>.
func parseCallback(data string) (approve bool, id uuid.UUID, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "review" {
		return false, uuid.Nil, false
	}
	switch parts[1] {
	case actionApprove:
		approve = true
	case actionReject:
	default:
		return false, uuid.Nil, false
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return false, uuid.Nil, false
	}
	return approve, id, true
}

func genderText(g string) string {
	switch g {
	case models.GenderMale:
		return "👨 Мужского"
	case models.GenderFemale:
		return "👩 Женского"
	}
	return "🧑 Не важно"
}

func reportCaption(p *assignment.ReportPayload) string {
	username := "без username"
	if p.Worker.Username != "" {
		username = "@" + html.EscapeString(p.Worker.Username)
	}
	fullName := p.Worker.FullName
	if fullName == "" {
		fullName = "—"
	}
	city := "—"
	if p.City != nil {
		city = html.EscapeString(p.City.Name)
	}

	var b strings.Builder
	b.WriteString("📤 <b>Новый отчёт</b>\n\n")
	fmt.Fprintf(&b, "👤 Пользователь: %s (%s)\n", html.EscapeString(fullName), username)
	fmt.Fprintf(&b, "🆔 Telegram ID: <code>%d</code>\n", p.Worker.TgID)
	fmt.Fprintf(&b, "🏷 Задание: <code>%s</code>\n\n", p.Task.HumanCode)
	fmt.Fprintf(&b, "📦 <b>ТЗ задания</b>:\n%s\n\n", html.EscapeString(p.Task.Text))
	if p.Task.ExampleText != "" {
		fmt.Fprintf(&b, "✍️ <b>Текст задания:</b>\n%s\n\n", html.EscapeString(p.Task.ExampleText))
	}
	fmt.Fprintf(&b, "🗣 <b>От какого лица нужно было оставить отзыв:</b> %s\n\n", genderText(p.Task.RequiredGender))
	fmt.Fprintf(&b, "🔗 <b>Ссылка:</b> %s\n", html.EscapeString(p.Task.Link))
	fmt.Fprintf(&b, "👤 Аккаунт: <code>%s</code>\n", html.EscapeString(p.Report.AccountName))
	fmt.Fprintf(&b, "🏙 Город: %s", city)
	return b.String()
}

// photoSource turns a stored object key into a URL Telegram can fetch;
// Telegram file ids are passed through.
func (n *Notifier) photoSource(ctx context.Context, ref string) string {
	if n.photos == nil || !strings.HasPrefix(ref, utils.ReportPhotoPrefix) {
		return ref
	}
	url, err := n.photos.SignedURL(ctx, ref, time.Hour)
	if err != nil {
		log.Warn().Err(err).Str("key", ref).Msg("presign report photo failed")
		return ref
	}
	return url
}

// NotifyReport sends the report with review buttons to every admin and
// remembers the messages.
func (n *Notifier) NotifyReport(ctx context.Context, p *assignment.ReportPayload) {
	caption := reportCaption(p)
	photo := n.photoSource(ctx, p.Report.PhotoRef)
	for _, adminID := range n.adminIDs {
		msgID, err := n.client.SendPhoto(ctx, adminID, photo, caption, reviewKeyboard(p.Assignment.ID))
		if err != nil {
			log.Error().Err(err).Int64("admin_id", adminID).Str("assignment_id", p.Assignment.ID.String()).
				Msg("failed to send report to admin")
			continue
		}
		if err := n.store.SaveAdminMessage(ctx, p.Assignment.ID, adminID, msgID); err != nil {
			log.Error().Err(err).Int64("admin_id", adminID).Msg("failed to save admin message")
		}
	}
}

// NotifyVerdict closes the review prompts of every admin, removes the
// worker's report message and tells the worker the outcome. baseCaption is the
// prompt text to keep; when empty a short summary is used.
func (n *Notifier) NotifyVerdict(ctx context.Context, a *models.Assignment, reviewer, baseCaption string) {
	approved := a.Status == models.StatusApproved
	logger := log.With().Str("assignment_id", a.ID.String()).Logger()

	if a.User != nil && a.ReportMessageID != nil {
		if err := n.client.DeleteMessage(ctx, a.User.TgID, *a.ReportMessageID); err != nil {
			logger.Warn().Err(err).Msg("failed to delete report message")
		}
	}

	status := "❌ <b>Отклонено</b>"
	if approved {
		status = "✅ <b>Одобрено</b>"
	}
	if baseCaption == "" && a.Task != nil {
		baseCaption = fmt.Sprintf("📤 Отчёт по заданию <code>%s</code>", a.Task.HumanCode)
	}
	caption := baseCaption + "\n\n" + status + "\n👨‍⚖️ Администратор: " + html.EscapeString(reviewer)

	msgs, err := n.store.AdminMessages(ctx, a.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load admin messages")
	}
	for _, m := range msgs {
		if err := n.client.EditMessageCaption(ctx, m.AdminTgID, m.MessageID, caption); err != nil {
			logger.Warn().Err(err).Int64("admin_id", m.AdminTgID).Msg("failed to edit admin message")
		}
	}
	if err := n.store.DeleteAdminMessages(ctx, a.ID); err != nil {
		logger.Error().Err(err).Msg("failed to delete admin messages")
	}

	if a.User == nil {
		return
	}
	text := "❌ Ваш отчёт отклонён."
	if approved {
		text = "✅ Ваш отчёт одобрен!"
	}
	if a.Task != nil {
		text += "\n\n📦 " + html.EscapeString(a.Task.Text)
	}
	if _, err := n.client.SendMessage(ctx, a.User.TgID, text, nil); err != nil {
		logger.Warn().Err(err).Int64("tg_id", a.User.TgID).Msg("failed to notify worker")
	}
}

// NotifyApproval tells the worker how their registration was decided.
func (n *Notifier) NotifyApproval(ctx context.Context, u *models.User) {
	text := "❌ В доступе отказано. К сожалению, вы не прошли проверку."
	if u.IsApproved() {
		text = "✅ Ваша регистрация одобрена! Отправьте /task, чтобы получить задание."
	}
	if _, err := n.client.SendMessage(ctx, u.TgID, text, nil); err != nil {
		log.Warn().Err(err).Int64("tg_id", u.TgID).Msg("failed to notify worker about approval")
	}
}

// Async runs fn detached from the request with its own deadline.
func Async(parent context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 30*time.Second)
	go func() {
		defer cancel()
		fn(ctx)
	}()
}
