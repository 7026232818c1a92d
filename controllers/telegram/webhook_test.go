package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gigtasks/database"
	"gigtasks/models"
	"gigtasks/services/assignment"

	"github.com/google/uuid"
)

type apiCall struct {
	Method  string
	Payload map[string]any
}

// fakeBotAPI records Bot API calls and answers them successfully.
type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []apiCall
	nextID int64
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	_ = json.NewDecoder(r.Body).Decode(&payload)
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Payload: payload})
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(method, "send") {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": id}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
}

func (f *fakeBotAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBotAPI) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

type recordingArchiver struct{ ids []uuid.UUID }

func (r *recordingArchiver) ArchiveLater(id uuid.UUID) { r.ids = append(r.ids, id) }

type fixture struct {
	svc      *assignment.Service
	api      *fakeBotAPI
	webhook  *Webhook
	archiver *recordingArchiver
}

var adminIDs = []int64{900, 901}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db.Create(&models.Task{Text: "Отзыв о кафе", Source: models.SourceYandex, Link: "https://yandex.example/1"}).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}

	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc := assignment.New(db, assignment.Options{})
	client := NewClient("TEST").WithBaseURL(srv.URL)
	notifier := NewNotifier(client, svc, adminIDs, nil)
	isAdmin := func(id int64) bool { return id == 900 || id == 901 }
	archiver := &recordingArchiver{}
	return &fixture{
		svc:      svc,
		api:      api,
		webhook:  NewWebhook(svc, client, notifier, isAdmin, "s3cret", archiver),
		archiver: archiver,
	}
}

func (f *fixture) send(t *testing.T, u Update) int {
	t.Helper()
	body, _ := json.Marshal(u)
	req := httptest.NewRequest(http.MethodPost, "/v1/telegram/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)
	return rec.Code
}

// approve registers the worker through /start and has an admin approve them.
func (f *fixture) approve(t *testing.T, tgID int64) {
	t.Helper()
	f.send(t, Update{Message: privateMessage(tgID, "/start")})
	if _, err := f.svc.DecideRegistration(context.Background(), tgID, 900, true); err != nil {
		t.Fatalf("DecideRegistration: %v", err)
	}
	f.api.reset()
}

func privateMessage(from int64, text string) *Message {
	return &Message{
		MessageID: 10,
		From:      &User{ID: from, FirstName: "Anna", Username: "anna"},
		Chat:      &Chat{ID: from, Type: "private"},
		Text:      text,
	}
}

func callback(from int64, data string) *CallbackQuery {
	return &CallbackQuery{
		ID:      "cb-1",
		From:    &User{ID: from, Username: "boss"},
		Message: &Message{MessageID: 1, Caption: "Новый отчёт"},
		Data:    data,
	}
}

func lastAnswer(t *testing.T, api *fakeBotAPI) string {
	t.Helper()
	answers := api.byMethod("answerCallbackQuery")
	if len(answers) == 0 {
		t.Fatal("no callback answer sent")
	}
	text, _ := answers[len(answers)-1].Payload["text"].(string)
	return text
}

func TestWebhook_RejectsWrongSecret(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/telegram/webhook", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	f.webhook.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_TaskReportReviewFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, 42)

	if code := f.send(t, Update{Message: privateMessage(42, "/task yandex")}); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	sent := f.api.byMethod("sendMessage")
	if len(sent) != 1 || !strings.Contains(sent[0].Payload["text"].(string), "Отзыв о кафе") {
		t.Fatalf("expected task text, got %+v", sent)
	}

	f.api.reset()
	f.send(t, Update{Message: privateMessage(42, "/task")})
	if sent := f.api.byMethod("sendMessage"); len(sent) != 1 || !strings.Contains(sent[0].Payload["text"].(string), "/current") {
		t.Fatalf("expected has_active reply, got %+v", sent)
	}

	f.api.reset()
	report := privateMessage(42, "")
	report.MessageID = 77
	report.Caption = "anna_reviews"
	report.Photo = []PhotoSize{{FileID: "small"}, {FileID: "large"}}
	f.send(t, Update{Message: report})

	photos := f.api.byMethod("sendPhoto")
	if len(photos) != len(adminIDs) {
		t.Fatalf("expected report sent to %d admins, got %d", len(adminIDs), len(photos))
	}
	if photos[0].Payload["photo"] != "large" {
		t.Fatalf("expected largest photo, got %v", photos[0].Payload["photo"])
	}

	w, err := f.svc.WorkerByTgID(ctx, 42)
	if err != nil {
		t.Fatalf("WorkerByTgID: %v", err)
	}
	a, err := f.svc.ActiveAssignment(ctx, w.ID)
	if err != nil || a.Status != models.StatusSubmitted {
		t.Fatalf("ActiveAssignment = %+v, %v", a, err)
	}
	msgs, _ := f.svc.AdminMessages(ctx, a.ID)
	if len(msgs) != len(adminIDs) {
		t.Fatalf("expected %d admin messages, got %d", len(adminIDs), len(msgs))
	}

	// non-admins cannot review
	f.api.reset()
	f.send(t, Update{CallbackQuery: callback(42, callbackData(actionApprove, a.ID))})
	if got := lastAnswer(t, f.api); !strings.Contains(got, "Нет доступа") {
		t.Fatalf("unexpected answer %q", got)
	}

	f.api.reset()
	f.send(t, Update{CallbackQuery: callback(900, callbackData(actionReject, a.ID))})
	if got := lastAnswer(t, f.api); got != "Готово" {
		t.Fatalf("unexpected answer %q", got)
	}
	if edits := f.api.byMethod("editMessageCaption"); len(edits) != len(adminIDs) {
		t.Fatalf("expected %d caption edits, got %d", len(adminIDs), len(edits))
	}
	if dels := f.api.byMethod("deleteMessage"); len(dels) != 1 || dels[0].Payload["message_id"] != float64(77) {
		t.Fatalf("expected report message deletion, got %+v", dels)
	}
	if len(f.archiver.ids) != 1 || f.archiver.ids[0] != a.ID {
		t.Fatalf("expected delayed archive for rejected assignment, got %v", f.archiver.ids)
	}
	if msgs, _ := f.svc.AdminMessages(ctx, a.ID); len(msgs) != 0 {
		t.Fatalf("admin messages not cleared: %d", len(msgs))
	}

	// second admin is too late
	f.api.reset()
	f.send(t, Update{CallbackQuery: callback(901, callbackData(actionApprove, a.ID))})
	if got := lastAnswer(t, f.api); !strings.Contains(got, "уже обработано") {
		t.Fatalf("unexpected answer %q", got)
	}
	got, _ := f.svc.GetAssignment(ctx, a.ID)
	if got.Status != models.StatusRejected || *got.ProcessedByAdminID != 900 {
		t.Fatalf("unexpected assignment %+v", got)
	}
}

func TestParseCallback(t *testing.T) {
	id := uuid.New()
	approve, got, ok := parseCallback(callbackData(actionApprove, id))
	if !ok || !approve || got != id {
		t.Fatalf("approve callback parsed as %v %v %v", approve, got, ok)
	}
	if approve, _, ok := parseCallback(callbackData(actionReject, id)); !ok || approve {
		t.Fatal("reject callback misparsed")
	}
	for _, bad := range []string{"", "review:approve", "review:delete:" + id.String(), "other:approve:" + id.String(), "review:approve:nope"} {
		if _, _, ok := parseCallback(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestWebhook_UnapprovedWorkerGetsNoTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(t, Update{Message: privateMessage(43, "/start")})
	if sent := f.api.byMethod("sendMessage"); len(sent) != 1 || !strings.Contains(sent[0].Payload["text"].(string), "на проверке") {
		t.Fatalf("expected pending notice on /start, got %+v", sent)
	}

	f.api.reset()
	f.send(t, Update{Message: privateMessage(43, "/task yandex")})
	if sent := f.api.byMethod("sendMessage"); len(sent) != 1 || !strings.Contains(sent[0].Payload["text"].(string), "на проверке") {
		t.Fatalf("expected pending notice on /task, got %+v", sent)
	}
	w, err := f.svc.WorkerByTgID(ctx, 43)
	if err != nil {
		t.Fatalf("WorkerByTgID: %v", err)
	}
	if _, err := f.svc.ActiveAssignment(ctx, w.ID); err == nil {
		t.Fatal("pending worker must not receive a task")
	}

	if _, err := f.svc.DecideRegistration(ctx, 43, 900, false); err != nil {
		t.Fatalf("DecideRegistration: %v", err)
	}
	f.api.reset()
	f.send(t, Update{Message: privateMessage(43, "/task yandex")})
	if sent := f.api.byMethod("sendMessage"); len(sent) != 1 || !strings.Contains(sent[0].Payload["text"].(string), "отказано") {
		t.Fatalf("expected rejection notice, got %+v", sent)
	}
}
