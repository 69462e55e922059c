package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

func testPayload(activityID int64) *domain.AlertPayload {
	return &domain.AlertPayload{
		Type:       domain.AlertNegativeReview,
		ActivityID: activityID,
		TargetName: "Alice",
		TargetKey:  "profileId:7",
		AuthorName: "Mallory",
		Score:      -1,
		Comment:    "Scammed me on a trade",
	}
}

func TestDispatchUsecase_SendAlert_ChannelIsolation(t *testing.T) {
	broken := &fakeNotifier{name: "feishu", failWith: errors.New("upstream 500")}
	working := &fakeNotifier{name: "telegram"}
	env := newTestEnv(t, broken, working)

	delivered := env.dispatch.SendAlert(context.Background(), testPayload(1))

	if len(delivered) != 1 {
		t.Fatalf("Expected exactly 1 delivery, got %v", delivered)
	}
	if delivered["telegram"] != "telegram-msg-1" {
		t.Errorf("Expected telegram delivery id, got %v", delivered)
	}
	if working.sentCount() != 1 {
		t.Errorf("Expected the working channel to receive the alert, got %d", working.sentCount())
	}

	alerts, _ := env.store.ListAlerts(context.Background(), domain.AlertPending, 10)
	if len(alerts) != 1 {
		t.Fatalf("Expected an alert row only for the delivered channel, got %d", len(alerts))
	}
	if alerts[0].Channel != "telegram" {
		t.Errorf("Expected telegram alert row, got %s", alerts[0].Channel)
	}
	if alerts[0].ID != working.sent[0].alertID {
		t.Error("Expected the stored alert id to match the one handed to the channel")
	}
}

func TestDispatchUsecase_SendAlert_DisabledChannelSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetEnabled(context.Background(), "telegram", false)

	delivered := env.dispatch.SendAlert(context.Background(), testPayload(1))

	if len(delivered) != 0 {
		t.Errorf("Expected no deliveries on a disabled channel, got %v", delivered)
	}
	if env.notifier.sentCount() != 0 {
		t.Errorf("Expected the disabled channel to stay silent, got %d", env.notifier.sentCount())
	}
	alerts, _ := env.store.ListAlerts(context.Background(), "", 10)
	if len(alerts) != 0 {
		t.Errorf("Expected no alert rows, got %d", len(alerts))
	}
}

func TestDispatchUsecase_SendCredentialAlert_PlainTextOnly(t *testing.T) {
	env := newTestEnv(t)

	env.dispatch.SendCredentialAlert(context.Background(), domain.CredentialStatus{
		Configured: true, IsExpired: true,
	})

	env.notifier.mu.Lock()
	texts := append([]string(nil), env.notifier.texts...)
	env.notifier.mu.Unlock()
	if len(texts) != 1 {
		t.Fatalf("Expected 1 credential notice, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "EXPIRED") {
		t.Errorf("Expected expiry wording, got %s", texts[0])
	}
	alerts, _ := env.store.ListAlerts(context.Background(), "", 10)
	if len(alerts) != 0 {
		t.Errorf("Expected no alert rows for credential notices, got %d", len(alerts))
	}
}

func seedAlertWithDefense(t *testing.T, env *testEnv) (*domain.Alert, *domain.Defense, int64) {
	t.Helper()
	ctx := context.Background()

	actID, err := env.store.Create(ctx, &domain.ActivityRecord{
		ExternalID: "rev-100",
		Kind:       domain.KindReview,
		Score:      -1,
		Negative:   true,
	})
	if err != nil {
		t.Fatalf("Failed to seed activity: %v", err)
	}

	defID, err := env.store.CreateDefense(ctx, &domain.Defense{
		ActivityID: actID,
		TargetKey:  "profileId:7",
		Score:      3,
		Comment:    "Strong vouch from me.",
		Status:     domain.DefensePending,
	})
	if err != nil {
		t.Fatalf("Failed to seed defense: %v", err)
	}
	def, _ := env.store.GetDefense(ctx, defID)

	alert := &domain.Alert{ID: "alert-1", ActivityID: actID, Type: domain.AlertNegativeReview,
		Channel: "telegram", Status: domain.AlertPending}
	if err := env.store.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("Failed to seed alert: %v", err)
	}
	return alert, def, actID
}

func TestDispatchUsecase_HandleAction_Confirm(t *testing.T) {
	env := newTestEnv(t)
	alert, def, actID := seedAlertWithDefense(t, env)

	ack, err := env.dispatch.HandleAction(context.Background(), domain.ActionConfirm, alert.ID, actID)
	if err != nil {
		t.Fatalf("Expected confirm to succeed: %v", err)
	}
	if !strings.Contains(ack, "Defense posted") {
		t.Errorf("Expected posted acknowledgement, got %s", ack)
	}

	stored, _ := env.store.GetDefense(context.Background(), def.ID)
	if stored.Status != domain.DefensePosted {
		t.Errorf("Expected POSTED defense, got %s", stored.Status)
	}
	updated, _ := env.store.GetAlert(context.Background(), alert.ID)
	if updated.Status != domain.AlertConfirmed {
		t.Errorf("Expected CONFIRMED alert, got %s", updated.Status)
	}
	if len(env.ethos.submitted) != 1 {
		t.Fatalf("Expected 1 review submission, got %d", len(env.ethos.submitted))
	}
	if env.ethos.submitted[0].target != "profileId:7" || env.ethos.submitted[0].score != 3 {
		t.Errorf("Expected the seeded defense to be submitted, got %+v", env.ethos.submitted[0])
	}
}

func TestDispatchUsecase_HandleAction_Ignore(t *testing.T) {
	env := newTestEnv(t)
	alert, _, actID := seedAlertWithDefense(t, env)

	ack, err := env.dispatch.HandleAction(context.Background(), domain.ActionIgnore, alert.ID, actID)
	if err != nil {
		t.Fatalf("Expected ignore to succeed: %v", err)
	}
	if !strings.Contains(ack, "ignored") {
		t.Errorf("Expected ignore acknowledgement, got %s", ack)
	}
	updated, _ := env.store.GetAlert(context.Background(), alert.ID)
	if updated.Status != domain.AlertIgnored {
		t.Errorf("Expected IGNORED alert, got %s", updated.Status)
	}
	if len(env.ethos.submitted) != 0 {
		t.Errorf("Expected no submission on ignore, got %d", len(env.ethos.submitted))
	}

	if _, err := env.dispatch.HandleAction(context.Background(), domain.ActionIgnore, alert.ID, actID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("Expected a second ignore to be rejected, got %v", err)
	}
}

func TestDispatchUsecase_HandleAction_Edit(t *testing.T) {
	env := newTestEnv(t)
	alert, def, actID := seedAlertWithDefense(t, env)

	ack, err := env.dispatch.HandleAction(context.Background(), domain.ActionEdit, alert.ID, actID)
	if err != nil {
		t.Fatalf("Expected edit to succeed: %v", err)
	}
	if !strings.Contains(ack, "dashboard") {
		t.Errorf("Expected dashboard hint, got %s", ack)
	}

	updated, _ := env.store.GetAlert(context.Background(), alert.ID)
	if updated.Status != domain.AlertPending {
		t.Errorf("Expected alert to stay PENDING on edit, got %s", updated.Status)
	}
	stored, _ := env.store.GetDefense(context.Background(), def.ID)
	if stored.Status != domain.DefensePending {
		t.Errorf("Expected defense to stay PENDING on edit, got %s", stored.Status)
	}
}

func TestDispatchUsecase_HandleAction_Unknown(t *testing.T) {
	env := newTestEnv(t)

	ack, err := env.dispatch.HandleAction(context.Background(), domain.ActionUnknown, "alert-1", 1)
	if err != nil {
		t.Errorf("Expected unknown actions to be acknowledged as no-ops, got %v", err)
	}
	if ack != "" {
		t.Errorf("Expected empty acknowledgement, got %s", ack)
	}
}
