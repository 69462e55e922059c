package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// ========== Fake network client ==========

type submittedReview struct {
	target  string
	score   int
	comment string
}

type fakeEthos struct {
	mu          sync.Mutex
	vouches     []repo.VouchInfo
	vouchErr    error
	vouchGate   chan struct{} // when set, VouchesByVoucher blocks until closed
	activities  map[string][]repo.RawActivity
	activityErr error
	profiles    map[string]*repo.ProfileInfo
	scores      map[string]int
	submitErr   error
	submitted   []submittedReview
	token       string
}

func newFakeEthos() *fakeEthos {
	return &fakeEthos{
		activities: make(map[string][]repo.RawActivity),
		profiles:   make(map[string]*repo.ProfileInfo),
		scores:     make(map[string]int),
	}
}

func (f *fakeEthos) VouchesByVoucher(ctx context.Context, userkey string) ([]repo.VouchInfo, error) {
	if f.vouchGate != nil {
		<-f.vouchGate
	}
	if f.vouchErr != nil {
		return nil, f.vouchErr
	}
	return f.vouches, nil
}

func (f *fakeEthos) ReceivedActivities(ctx context.Context, userkey string, kinds []string, limit, offset int) ([]repo.RawActivity, error) {
	if f.activityErr != nil {
		return nil, f.activityErr
	}
	return f.activities[userkey], nil
}

func (f *fakeEthos) Profile(ctx context.Context, userkey string) (*repo.ProfileInfo, error) {
	if p, ok := f.profiles[userkey]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEthos) Score(ctx context.Context, userkey string) (int, error) {
	return f.scores[userkey], nil
}

func (f *fakeEthos) SubmitReview(ctx context.Context, targetKey string, score int, comment string) (*repo.ReviewReceipt, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, submittedReview{target: targetKey, score: score, comment: comment})
	n := len(f.submitted)
	f.mu.Unlock()
	return &repo.ReviewReceipt{ReviewID: fmt.Sprintf("rev-%d", n), TxRef: fmt.Sprintf("0xtx%d", n)}, nil
}

func (f *fakeEthos) Health(ctx context.Context) bool { return true }

func (f *fakeEthos) SetToken(token string) { f.token = token }

// ========== In-memory store ==========

// memStore implements every repository interface for tests
type memStore struct {
	mu        sync.Mutex
	rels      map[int64]*domain.Relationship
	relByKey  map[string]int64
	nextRelID int64
	acts      map[int64]*domain.ActivityRecord
	actByExt  map[string]int64
	nextActID int64
	alerts    map[string]*domain.Alert
	defenses  map[int64]*domain.Defense
	nextDefID int64
	cycles    []*domain.CycleLog
	cred      *domain.Credential
	channels  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		rels:     make(map[int64]*domain.Relationship),
		relByKey: make(map[string]int64),
		acts:     make(map[int64]*domain.ActivityRecord),
		actByExt: make(map[string]int64),
		alerts:   make(map[string]*domain.Alert),
		defenses: make(map[int64]*domain.Defense),
		channels: make(map[string]bool),
	}
}

func (s *memStore) Upsert(ctx context.Context, rel *domain.Relationship) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.relByKey[rel.Userkey]; ok {
		cur := s.rels[id]
		cur.Name = rel.Name
		cur.Address = rel.Address
		cur.Score = rel.Score
		cur.VouchID = rel.VouchID
		cur.Active = true
		cur.LastSeen = rel.LastSeen
		return id, nil
	}
	s.nextRelID++
	cp := *rel
	cp.ID = s.nextRelID
	cp.FirstSeen = time.Now()
	s.rels[cp.ID] = &cp
	s.relByKey[cp.Userkey] = cp.ID
	return cp.ID, nil
}

func (s *memStore) GetByUserkey(ctx context.Context, userkey string) (*domain.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.relByKey[userkey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.rels[id]
	return &cp, nil
}

func (s *memStore) List(ctx context.Context, onlyActive bool) ([]*domain.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Relationship
	for _, r := range s.rels {
		if onlyActive && !r.Active {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) Deactivate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rels[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Active = false
	return nil
}

func (s *memStore) Create(ctx context.Context, rec *domain.ActivityRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actByExt[rec.ExternalID]; ok {
		return 0, fmt.Errorf("duplicate external id %s", rec.ExternalID)
	}
	s.nextActID++
	cp := *rec
	cp.ID = s.nextActID
	cp.CreatedAt = time.Now()
	s.acts[cp.ID] = &cp
	s.actByExt[cp.ExternalID] = cp.ID
	return cp.ID, nil
}

func (s *memStore) ExistsExternalID(ctx context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.actByExt[externalID]
	return ok, nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*domain.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.acts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) MarkAlerted(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.acts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Alerted = true
	return nil
}

func (s *memStore) ListActivities(ctx context.Context, onlyNegative bool, limit, offset int) ([]*domain.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ActivityRecord
	for id := s.nextActID; id > 0; id-- {
		a, ok := s.acts[id]
		if !ok || (onlyNegative && !a.Negative) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.acts)), nil
}

func (s *memStore) CreateAlert(ctx context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts[cp.ID] = &cp
	return nil
}

func (s *memStore) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !a.Status.CanTransitionTo(status) {
		return domain.ErrInvalidState
	}
	a.Status = status
	a.RespondedAt = time.Now()
	return nil
}

func (s *memStore) ListAlerts(ctx context.Context, status domain.AlertStatus, limit int) ([]*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Alert
	for _, a := range s.alerts {
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.alerts {
		if a.Status == domain.AlertPending && a.SentAt.Before(cutoff) {
			a.Status = domain.AlertExpired
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateDefense(ctx context.Context, def *domain.Defense) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDefID++
	cp := *def
	cp.ID = s.nextDefID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.defenses[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memStore) GetDefense(ctx context.Context, id int64) (*domain.Defense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defenses[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetActiveByActivity(ctx context.Context, activityID int64) (*domain.Defense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defenses {
		if d.ActivityID == activityID && d.Status.Active() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) MarkConfirmed(ctx context.Context, id int64) error {
	return s.transitionDefense(id, domain.DefenseConfirmed, func(d *domain.Defense) {})
}

func (s *memStore) MarkPosted(ctx context.Context, id int64, score int, comment, externalID, txRef string) error {
	return s.transitionDefense(id, domain.DefensePosted, func(d *domain.Defense) {
		d.Score = score
		d.Comment = comment
		d.ExternalID = externalID
		d.TxRef = txRef
	})
}

func (s *memStore) MarkFailed(ctx context.Context, id int64, detail string) error {
	return s.transitionDefense(id, domain.DefenseFailed, func(d *domain.Defense) {
		d.LastError = detail
	})
}

func (s *memStore) transitionDefense(id int64, to domain.DefenseStatus, apply func(*domain.Defense)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defenses[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !d.Status.CanTransitionTo(to) {
		return domain.ErrInvalidState
	}
	d.Status = to
	d.UpdatedAt = time.Now()
	apply(d)
	return nil
}

func (s *memStore) ListDefenses(ctx context.Context, status domain.DefenseStatus, limit int) ([]*domain.Defense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Defense
	for _, d := range s.defenses {
		if status != "" && d.Status != status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) Append(ctx context.Context, log *domain.CycleLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	cp.ID = int64(len(s.cycles) + 1)
	s.cycles = append(s.cycles, &cp)
	return cp.ID, nil
}

func (s *memStore) Latest(ctx context.Context) (*domain.CycleLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cycles) == 0 {
		return nil, domain.ErrNotFound
	}
	cp := *s.cycles[len(s.cycles)-1]
	return &cp, nil
}

func (s *memStore) ListCycles(ctx context.Context, limit int) ([]*domain.CycleLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CycleLog
	for i := len(s.cycles) - 1; i >= 0; i-- {
		cp := *s.cycles[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.CycleLog
	var n int64
	for _, c := range s.cycles {
		if c.RanAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.cycles = kept
	return n, nil
}

func (s *memStore) cycleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cycles)
}

func (s *memStore) Save(ctx context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.cred = &cp
	return nil
}

func (s *memStore) Load(ctx context.Context) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, domain.ErrNotFound
	}
	cp := *s.cred
	return &cp, nil
}

func (s *memStore) Ensure(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[name]; !ok {
		s.channels[name] = true
	}
	return nil
}

func (s *memStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[name] = enabled
	return nil
}

func (s *memStore) IsEnabled(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.channels[name]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

func (s *memStore) ListChannels(ctx context.Context) ([]*domain.ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ChannelConfig
	for name, enabled := range s.channels {
		out = append(out, &domain.ChannelConfig{Name: name, Enabled: enabled})
	}
	return out, nil
}

// Interface splits so one memStore serves every repo parameter.

type memActivityRepo struct{ *memStore }

func (m memActivityRepo) List(ctx context.Context, onlyNegative bool, limit, offset int) ([]*domain.ActivityRecord, error) {
	return m.ListActivities(ctx, onlyNegative, limit, offset)
}

type memAlertRepo struct{ *memStore }

func (m memAlertRepo) Create(ctx context.Context, alert *domain.Alert) error {
	return m.CreateAlert(ctx, alert)
}

func (m memAlertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	return m.GetAlert(ctx, id)
}

func (m memAlertRepo) List(ctx context.Context, status domain.AlertStatus, limit int) ([]*domain.Alert, error) {
	return m.ListAlerts(ctx, status, limit)
}

type memDefenseRepo struct{ *memStore }

func (m memDefenseRepo) Create(ctx context.Context, def *domain.Defense) (int64, error) {
	return m.CreateDefense(ctx, def)
}

func (m memDefenseRepo) GetByID(ctx context.Context, id int64) (*domain.Defense, error) {
	return m.GetDefense(ctx, id)
}

func (m memDefenseRepo) List(ctx context.Context, status domain.DefenseStatus, limit int) ([]*domain.Defense, error) {
	return m.ListDefenses(ctx, status, limit)
}

type memCycleRepo struct{ *memStore }

func (m memCycleRepo) List(ctx context.Context, limit int) ([]*domain.CycleLog, error) {
	return m.ListCycles(ctx, limit)
}

type memChannelRepo struct{ *memStore }

func (m memChannelRepo) List(ctx context.Context) ([]*domain.ChannelConfig, error) {
	return m.ListChannels(ctx)
}

// ========== Fake notifier ==========

type sentAlert struct {
	alertID string
	payload *domain.AlertPayload
}

type fakeNotifier struct {
	name     string
	failWith error
	mu       sync.Mutex
	sent     []sentAlert
	texts    []string
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) SendAlert(ctx context.Context, alertID string, p *domain.AlertPayload) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentAlert{alertID: alertID, payload: p})
	return fmt.Sprintf("%s-msg-%d", f.name, len(f.sent)), nil
}

func (f *fakeNotifier) SendText(ctx context.Context, text string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// ========== Wiring helper ==========

type testEnv struct {
	ethos    *fakeEthos
	store    *memStore
	notifier *fakeNotifier
	cred     *CredentialUsecase
	defense  *DefenseUsecase
	dispatch *DispatchUsecase
	monitor  *MonitorUsecase
}

func newTestEnv(t *testing.T, notifiers ...repo.Notifier) *testEnv {
	t.Helper()

	ethos := newFakeEthos()
	store := newMemStore()
	log := logger.Nop()

	notifier := &fakeNotifier{name: "telegram"}
	if len(notifiers) == 0 {
		notifiers = []repo.Notifier{notifier}
	}

	cred := NewCredentialUsecase(store, ethos, log)
	if err := cred.UpdateToken(context.Background(), testToken(t, time.Now().Add(24*time.Hour))); err != nil {
		t.Fatalf("Failed to seed credential: %v", err)
	}

	defense := NewDefenseUsecase(ethos, memDefenseRepo{store}, memAlertRepo{store}, cred, log)
	triage := NewTriageUsecase(nil, log)
	dispatch := NewDispatchUsecase(notifiers, memAlertRepo{store}, memChannelRepo{store}, triage, defense, DefaultDispatchConfig(), log)

	cfg := DefaultMonitorConfig()
	cfg.OperatorKey = "profileId:100"
	cfg.DashboardBaseURL = "http://127.0.0.1:8090"
	monitor := NewMonitorUsecase(ethos, store, memActivityRepo{store}, memDefenseRepo{store},
		memAlertRepo{store}, memCycleRepo{store}, dispatch, defense, cfg, log)

	return &testEnv{
		ethos:    ethos,
		store:    store,
		notifier: notifier,
		cred:     cred,
		defense:  defense,
		dispatch: dispatch,
		monitor:  monitor,
	}
}

// testToken builds an unsigned-trust HS256 token with the given expiry
func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "0xoperator",
		"sid": "sess-test",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}
