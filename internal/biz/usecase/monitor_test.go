package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
)

func testVouch(userkey, name, address string) repo.VouchInfo {
	return repo.VouchInfo{
		ID:         "vouch-" + userkey,
		SubjectKey: userkey,
		Profile:    &repo.EmbeddedProfile{Name: name, Address: address, Score: 1500},
	}
}

func TestMonitorUsecase_RunCycle_NegativeReviewAlerts(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0x1f9090aaE28b8a3dCeaDf281B0F12828e676c326")}
	env.ethos.activities["profileId:7"] = []repo.RawActivity{{
		ID:        "rev-100",
		Kind:      domain.KindReview,
		AuthorKey: "profileId:9",
		Score:     json.RawMessage(`"negative"`),
		Comment:   "Scammed me on a trade",
		Timestamp: 1700000000,
	}}

	result := env.monitor.RunCycle(context.Background())

	if result.RelationshipsChecked != 1 {
		t.Errorf("Expected 1 relationship checked, got %d", result.RelationshipsChecked)
	}
	if result.ActivitiesFound != 1 {
		t.Errorf("Expected 1 activity found, got %d", result.ActivitiesFound)
	}
	if result.NewNegative != 1 {
		t.Errorf("Expected 1 new negative activity, got %d", result.NewNegative)
	}
	if result.AlertsSent != 1 {
		t.Errorf("Expected 1 alert sent, got %d", result.AlertsSent)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no cycle errors, got %v", result.Errors)
	}

	rel, err := env.store.GetByUserkey(context.Background(), "profileId:7")
	if err != nil {
		t.Fatalf("Expected relationship to be stored: %v", err)
	}
	if !rel.Active || rel.Name != "Alice" {
		t.Errorf("Expected active relationship for Alice, got %+v", rel)
	}

	act, err := env.store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected activity to be stored: %v", err)
	}
	if !act.Negative {
		t.Error("Expected activity to be flagged negative")
	}
	if !act.Alerted {
		t.Error("Expected activity to be marked alerted")
	}
	if act.ExternalID != "rev-100" {
		t.Errorf("Expected external id rev-100, got %s", act.ExternalID)
	}
	if act.EventAt.UnixMilli() != 1700000000000 {
		t.Errorf("Expected event time upscaled to millis, got %d", act.EventAt.UnixMilli())
	}

	if env.notifier.sentCount() != 1 {
		t.Fatalf("Expected 1 notifier delivery, got %d", env.notifier.sentCount())
	}
	sent := env.notifier.sent[0]
	if sent.payload.Type != domain.AlertNegativeReview {
		t.Errorf("Expected alert type %s, got %s", domain.AlertNegativeReview, sent.payload.Type)
	}
	if sent.payload.TargetName != "Alice" {
		t.Errorf("Expected target name Alice, got %s", sent.payload.TargetName)
	}
	if !strings.Contains(sent.payload.ProfileURL, "profileId:7") {
		t.Errorf("Expected profile URL to carry the userkey, got %s", sent.payload.ProfileURL)
	}
	if sent.payload.Suggested == nil {
		t.Fatal("Expected a suggested defense on a review alert")
	}

	alert, err := env.store.GetAlert(context.Background(), sent.alertID)
	if err != nil {
		t.Fatalf("Expected alert row for delivered channel: %v", err)
	}
	if alert.Status != domain.AlertPending {
		t.Errorf("Expected PENDING alert, got %s", alert.Status)
	}
	if alert.Channel != "telegram" || alert.MessageID != "telegram-msg-1" {
		t.Errorf("Expected telegram delivery recorded, got %+v", alert)
	}

	def, err := env.store.GetActiveByActivity(context.Background(), act.ID)
	if err != nil {
		t.Fatalf("Expected a pending defense for the activity: %v", err)
	}
	if def.Status != domain.DefensePending {
		t.Errorf("Expected PENDING defense, got %s", def.Status)
	}
	if def.Score != 3 {
		t.Errorf("Expected default defense score 3, got %d", def.Score)
	}
}

func TestMonitorUsecase_RunCycle_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.ethos.activities["profileId:7"] = []repo.RawActivity{{
		ID:        "rev-100",
		Kind:      domain.KindReview,
		Score:     json.RawMessage("-1"),
		Timestamp: 1700000000,
	}}

	env.monitor.RunCycle(context.Background())
	second := env.monitor.RunCycle(context.Background())

	if second.ActivitiesFound != 1 {
		t.Errorf("Expected the activity to be seen again, got %d", second.ActivitiesFound)
	}
	if second.NewNegative != 0 {
		t.Errorf("Expected no new negatives on re-observation, got %d", second.NewNegative)
	}
	if second.AlertsSent != 0 {
		t.Errorf("Expected no duplicate alerts, got %d", second.AlertsSent)
	}

	count, _ := env.store.Count(context.Background())
	if count != 1 {
		t.Errorf("Expected exactly 1 stored activity, got %d", count)
	}
	if env.notifier.sentCount() != 1 {
		t.Errorf("Expected exactly 1 delivery across both cycles, got %d", env.notifier.sentCount())
	}
	if env.store.cycleCount() != 2 {
		t.Errorf("Expected 2 cycle logs, got %d", env.store.cycleCount())
	}
}

func TestMonitorUsecase_RunCycle_PositiveReviewIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.ethos.activities["profileId:7"] = []repo.RawActivity{{
		ID:        "rev-200",
		Kind:      domain.KindReview,
		Score:     json.RawMessage(`"positive"`),
		Comment:   "Great counterparty",
		Timestamp: 1700000000,
	}}

	result := env.monitor.RunCycle(context.Background())

	if result.NewNegative != 0 {
		t.Errorf("Expected no negatives, got %d", result.NewNegative)
	}
	if env.notifier.sentCount() != 0 {
		t.Errorf("Expected no deliveries for a positive review, got %d", env.notifier.sentCount())
	}
	act, err := env.store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected the positive activity to still be stored: %v", err)
	}
	if act.Negative || act.Alerted {
		t.Errorf("Expected stored activity to be neither negative nor alerted, got %+v", act)
	}
}

func TestMonitorUsecase_RunCycle_SlashAlwaysNegative(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.ethos.activities["profileId:7"] = []repo.RawActivity{{
		ID:        "slash-1",
		Kind:      domain.KindSlash,
		Score:     json.RawMessage(`"positive"`),
		Timestamp: 1700000000,
	}}

	result := env.monitor.RunCycle(context.Background())

	if result.NewNegative != 1 {
		t.Errorf("Expected a slash to count as negative regardless of score, got %d", result.NewNegative)
	}
	if env.notifier.sentCount() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", env.notifier.sentCount())
	}
	if env.notifier.sent[0].payload.Type != domain.AlertSlash {
		t.Errorf("Expected slash alert type, got %s", env.notifier.sent[0].payload.Type)
	}
}

func TestMonitorUsecase_RunCycle_SingleFlight(t *testing.T) {
	env := newTestEnv(t)
	gate := make(chan struct{})
	env.ethos.vouchGate = gate

	done := make(chan *domain.CycleLog, 1)
	go func() {
		done <- env.monitor.RunCycle(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !env.monitor.Running() {
		if time.Now().After(deadline) {
			t.Fatal("Expected the first cycle to start")
		}
		time.Sleep(time.Millisecond)
	}

	rejected := env.monitor.RunCycle(context.Background())
	if len(rejected.Errors) != 1 || rejected.Errors[0] != domain.ErrCycleRunning.Error() {
		t.Errorf("Expected the already-running notice, got %v", rejected.Errors)
	}
	if rejected.RelationshipsChecked != 0 || rejected.ActivitiesFound != 0 {
		t.Errorf("Expected zero counts for the rejected trigger, got %+v", rejected)
	}
	if env.store.cycleCount() != 0 {
		t.Errorf("Expected no cycle log for the rejected trigger, got %d", env.store.cycleCount())
	}

	close(gate)
	<-done

	if env.monitor.Running() {
		t.Error("Expected the latch to be released after the cycle")
	}
	if env.store.cycleCount() != 1 {
		t.Errorf("Expected exactly 1 cycle log, got %d", env.store.cycleCount())
	}
}

func TestMonitorUsecase_RunCycle_UnvouchDetected(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.monitor.RunCycle(context.Background())

	env.ethos.vouches = nil
	result := env.monitor.RunCycle(context.Background())

	if result.NewNegative != 1 {
		t.Errorf("Expected the withdrawal to count as negative, got %d", result.NewNegative)
	}
	rel, err := env.store.GetByUserkey(context.Background(), "profileId:7")
	if err != nil {
		t.Fatalf("Expected relationship to remain stored: %v", err)
	}
	if rel.Active {
		t.Error("Expected relationship to be deactivated after the unvouch")
	}

	if env.notifier.sentCount() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", env.notifier.sentCount())
	}
	sent := env.notifier.sent[0]
	if sent.payload.Type != domain.AlertUnvouch {
		t.Errorf("Expected unvouch alert type, got %s", sent.payload.Type)
	}
	if sent.payload.Suggested != nil {
		t.Error("Expected no suggested defense for an unvouch alert")
	}

	act, err := env.store.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("Expected synthetic activity to be stored: %v", err)
	}
	if act.Kind != domain.KindUnvouch || !act.Negative {
		t.Errorf("Expected negative unvouch activity, got %+v", act)
	}
	if !strings.HasPrefix(act.ExternalID, "unvouch-profileId:7-") {
		t.Errorf("Expected synthetic external id, got %s", act.ExternalID)
	}

	defs, _ := env.store.ListDefenses(context.Background(), "", 10)
	if len(defs) != 0 {
		t.Errorf("Expected no defense rows for an unvouch, got %d", len(defs))
	}
}

func TestMonitorUsecase_RunCycle_VouchListFailureSkipsUnvouchDetection(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.monitor.RunCycle(context.Background())

	env.ethos.vouchErr = errors.New("upstream 503")
	result := env.monitor.RunCycle(context.Background())

	if len(result.Errors) != 1 {
		t.Fatalf("Expected 1 cycle error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "upstream 503") {
		t.Errorf("Expected the upstream error to be recorded, got %s", result.Errors[0])
	}

	rel, err := env.store.GetByUserkey(context.Background(), "profileId:7")
	if err != nil {
		t.Fatalf("Expected relationship to remain stored: %v", err)
	}
	if !rel.Active {
		t.Error("Expected relationship to stay active when the vouch list cannot be fetched")
	}
	if env.store.cycleCount() != 2 {
		t.Errorf("Expected the failed cycle to still be logged, got %d", env.store.cycleCount())
	}
}

func TestMonitorUsecase_RunCycle_ListedVouchFailureIsNotUnvouch(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{testVouch("profileId:7", "Alice", "0xabc1234567890")}
	env.monitor.RunCycle(context.Background())

	// same vouch still listed, but this time without an embedded profile so
	// the lookup path runs, and the lookup fails
	env.ethos.vouches = []repo.VouchInfo{{ID: "vouch-profileId:7", SubjectKey: "profileId:7"}}
	result := env.monitor.RunCycle(context.Background())

	if len(result.Errors) != 1 {
		t.Fatalf("Expected 1 cycle error for the failed lookup, got %v", result.Errors)
	}
	if result.NewNegative != 0 {
		t.Errorf("Expected no negative records for a listed vouch, got %d", result.NewNegative)
	}

	rel, err := env.store.GetByUserkey(context.Background(), "profileId:7")
	if err != nil {
		t.Fatalf("Expected relationship to remain stored: %v", err)
	}
	if !rel.Active {
		t.Error("Expected relationship to stay active on a transient per-item failure")
	}

	if env.notifier.sentCount() != 0 {
		t.Fatalf("Expected no deliveries while the vouch is still listed, got %d", env.notifier.sentCount())
	}
	if _, err := env.store.GetByID(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Error("Expected no synthetic activity for a listed vouch")
	}
}

func TestMonitorUsecase_RunCycle_SkipsVouchWithoutAddress(t *testing.T) {
	env := newTestEnv(t)
	env.ethos.vouches = []repo.VouchInfo{{ID: "vouch-x", SubjectKey: "profileId:8"}}
	env.ethos.profiles["profileId:8"] = &repo.ProfileInfo{Name: "Ghost"}

	result := env.monitor.RunCycle(context.Background())

	if result.RelationshipsChecked != 0 {
		t.Errorf("Expected the address-less vouch to be skipped, got %d checked", result.RelationshipsChecked)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected a silent skip, got %v", result.Errors)
	}
	if _, err := env.store.GetByUserkey(context.Background(), "profileId:8"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("Expected no relationship row for the skipped vouch")
	}
}

func TestMonitorUsecase_Housekeep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stale := &domain.Alert{ID: "stale", Status: domain.AlertPending, SentAt: time.Now().Add(-8 * 24 * time.Hour)}
	fresh := &domain.Alert{ID: "fresh", Status: domain.AlertPending, SentAt: time.Now()}
	env.store.CreateAlert(ctx, stale)
	env.store.CreateAlert(ctx, fresh)
	env.store.Append(ctx, &domain.CycleLog{RanAt: time.Now().Add(-100 * 24 * time.Hour)})
	env.store.Append(ctx, &domain.CycleLog{RanAt: time.Now()})

	env.monitor.Housekeep(ctx)

	got, _ := env.store.GetAlert(ctx, "stale")
	if got.Status != domain.AlertExpired {
		t.Errorf("Expected stale pending alert to expire, got %s", got.Status)
	}
	got, _ = env.store.GetAlert(ctx, "fresh")
	if got.Status != domain.AlertPending {
		t.Errorf("Expected fresh alert to stay pending, got %s", got.Status)
	}
	if env.store.cycleCount() != 1 {
		t.Errorf("Expected old cycle logs to be pruned, got %d", env.store.cycleCount())
	}
}
