package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/biz/usecase"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

// Server provides the loopback HTTP API consumed by the dashboard and the
// MCP tools
type Server struct {
	relationships repo.RelationshipRepo
	activities    repo.ActivityRepo
	alerts        repo.AlertRepo
	defenses      repo.DefenseRepo
	cycles        repo.CycleRepo
	channels      repo.ChannelConfigRepo
	ethos         repo.EthosRepo

	monitorUC *usecase.MonitorUsecase
	defenseUC *usecase.DefenseUsecase
	credUC    *usecase.CredentialUsecase

	configured map[string]bool // channels with a working transport this boot
	interval   time.Duration
	log        *logger.Logger
	server     *http.Server
	port       int
}

// NewServer creates a new API server
func NewServer(
	relationships repo.RelationshipRepo,
	activities repo.ActivityRepo,
	alerts repo.AlertRepo,
	defenses repo.DefenseRepo,
	cycles repo.CycleRepo,
	channels repo.ChannelConfigRepo,
	ethos repo.EthosRepo,
	monitorUC *usecase.MonitorUsecase,
	defenseUC *usecase.DefenseUsecase,
	credUC *usecase.CredentialUsecase,
	configuredChannels []string,
	interval time.Duration,
	port int,
	log *logger.Logger,
) *Server {
	configured := make(map[string]bool, len(configuredChannels))
	for _, name := range configuredChannels {
		configured[name] = true
	}
	return &Server{
		relationships: relationships,
		activities:    activities,
		alerts:        alerts,
		defenses:      defenses,
		cycles:        cycles,
		channels:      channels,
		ethos:         ethos,
		monitorUC:     monitorUC,
		defenseUC:     defenseUC,
		credUC:        credUC,
		configured:    configured,
		interval:      interval,
		port:          port,
		log:           log.With("component", "api"),
	}
}

// Start starts the HTTP server on the loopback interface
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// Cycle control
	mux.HandleFunc("/api/cycle/trigger", s.handleCycleTrigger)
	mux.HandleFunc("/api/cycle/status", s.handleCycleStatus)
	mux.HandleFunc("/api/cycle/logs", s.handleCycleLogs)

	// Monitoring state
	mux.HandleFunc("/api/relationships", s.handleRelationships)
	mux.HandleFunc("/api/activities", s.handleActivities)

	// Alerts
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/alerts/", s.handleAlertItem)

	// Defenses
	mux.HandleFunc("/api/defenses", s.handleDefenses)
	mux.HandleFunc("/api/defense/execute", s.handleDefenseExecute)
	mux.HandleFunc("/api/defense/custom", s.handleDefenseCustom)

	// Credential
	mux.HandleFunc("/api/credential/status", s.handleCredentialStatus)
	mux.HandleFunc("/api/credential", s.handleCredentialUpdate)

	// Channels
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/channels/", s.handleChannelItem)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: s.withLogging(mux),
	}

	s.log.Info("starting http server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"id", uuid.NewString()[:8],
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// ============ Health ============

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":          "ok",
		"ethos_reachable": s.ethos.Health(r.Context()),
	})
}

// ============ Cycle Handlers ============

func (s *Server) handleCycleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.monitorUC.RunCycle(r.Context())
	if len(result.Errors) == 1 && result.Errors[0] == domain.ErrCycleRunning.Error() && result.DurationMs == 0 {
		s.writeError(w, domain.ErrCycleRunning)
		return
	}
	s.writeJSON(w, convertCycle(result))
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"running":          s.monitorUC.Running(),
		"interval_minutes": int(s.interval.Minutes()),
		"last_cycle":       nil,
	}
	if last, err := s.cycles.Latest(r.Context()); err == nil {
		resp["last_cycle"] = convertCycle(last)
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleCycleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logs, err := s.cycles.List(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]cycleJSON, len(logs))
	for i, l := range logs {
		out[i] = convertCycle(l)
	}
	s.writeJSON(w, map[string]interface{}{"logs": out})
}

// ============ Relationship Handlers ============

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	onlyActive := r.URL.Query().Get("active") == "true"
	rels, err := s.relationships.List(r.Context(), onlyActive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]relationshipJSON, len(rels))
	for i, rel := range rels {
		out[i] = convertRelationship(rel)
	}
	s.writeJSON(w, map[string]interface{}{"relationships": out})
}

// ============ Activity Handlers ============

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	onlyNegative := r.URL.Query().Get("negative") == "true"
	recs, err := s.activities.List(r.Context(), onlyNegative, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]activityJSON, len(recs))
	for i, rec := range recs {
		out[i] = convertActivity(rec)
	}
	s.writeJSON(w, map[string]interface{}{"activities": out})
}

// ============ Alert Handlers ============

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := domain.AlertStatus(r.URL.Query().Get("status"))
	alerts, err := s.alerts.List(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]alertJSON, len(alerts))
	for i, a := range alerts {
		out[i] = convertAlert(a)
	}
	s.writeJSON(w, map[string]interface{}{"alerts": out})
}

func (s *Server) handleAlertItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /api/alerts/{id}/status
	path := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "status" {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := domain.AlertStatus(req.Status)
	switch status {
	case domain.AlertConfirmed, domain.AlertIgnored, domain.AlertExpired:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := s.alerts.UpdateStatus(r.Context(), parts[0], status); err != nil {
		s.writeError(w, err)
		return
	}
	alert, err := s.alerts.GetByID(r.Context(), parts[0])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, convertAlert(alert))
}

// ============ Defense Handlers ============

func (s *Server) handleDefenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := domain.DefenseStatus(r.URL.Query().Get("status"))
	defs, err := s.defenses.List(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]defenseJSON, len(defs))
	for i, d := range defs {
		out[i] = convertDefense(d)
	}
	s.writeJSON(w, map[string]interface{}{"defenses": out})
}

func (s *Server) handleDefenseExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AlertID    string `json:"alert_id"`
		ActivityID int64  `json:"activity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.AlertID == "" || req.ActivityID == 0 {
		http.Error(w, "alert_id and activity_id are required", http.StatusBadRequest)
		return
	}

	def, err := s.defenseUC.ExecuteDefense(r.Context(), req.AlertID, req.ActivityID)
	if err != nil && def == nil {
		s.writeError(w, err)
		return
	}
	// A FAILED defense row is still a result worth returning
	resp := map[string]interface{}{"defense": convertDefense(def)}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleDefenseCustom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TargetUserkey string `json:"target_userkey"`
		Score         int    `json:"score"`
		Comment       string `json:"comment"`
		ActivityID    int64  `json:"activity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TargetUserkey == "" || req.Comment == "" {
		http.Error(w, "target_userkey and comment are required", http.StatusBadRequest)
		return
	}

	def, err := s.defenseUC.PostCustomDefense(r.Context(), req.TargetUserkey, req.Score, req.Comment, req.ActivityID)
	if err != nil && def == nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{"defense": convertDefense(def)}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.writeJSON(w, resp)
}

// ============ Credential Handlers ============

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// CredentialStatus never carries the token itself
	s.writeJSON(w, s.credUC.Status())
}

func (s *Server) handleCredentialUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := s.credUC.UpdateToken(r.Context(), req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.credUC.Status())
}

// ============ Channel Handlers ============

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	configs, err := s.channels.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]channelJSON, len(configs))
	for i, c := range configs {
		out[i] = channelJSON{
			Name:       c.Name,
			Enabled:    c.Enabled,
			Configured: s.configured[c.Name],
			UpdatedAt:  c.UpdatedAt,
		}
	}
	s.writeJSON(w, map[string]interface{}{"channels": out})
}

func (s *Server) handleChannelItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.channels.SetEnabled(r.Context(), name, req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"name": name, "enabled": req.Enabled})
}

// ============ Response Shapes ============

type relationshipJSON struct {
	ID        int64     `json:"id"`
	Userkey   string    `json:"userkey"`
	VouchID   string    `json:"vouch_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Score     int       `json:"score"`
	Active    bool      `json:"active"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func convertRelationship(rel *domain.Relationship) relationshipJSON {
	return relationshipJSON{
		ID:        rel.ID,
		Userkey:   rel.Userkey,
		VouchID:   rel.VouchID,
		Name:      rel.Name,
		Address:   rel.Address,
		Score:     rel.Score,
		Active:    rel.Active,
		FirstSeen: rel.FirstSeen,
		LastSeen:  rel.LastSeen,
	}
}

type activityJSON struct {
	ID             int64     `json:"id"`
	RelationshipID int64     `json:"relationship_id"`
	ExternalID     string    `json:"external_id"`
	Kind           string    `json:"kind"`
	AuthorKey      string    `json:"author_key"`
	AuthorName     string    `json:"author_name"`
	AuthorAddress  string    `json:"author_address"`
	Score          int       `json:"score"`
	Comment        string    `json:"comment"`
	Negative       bool      `json:"negative"`
	Alerted        bool      `json:"alerted"`
	EventAt        time.Time `json:"event_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func convertActivity(rec *domain.ActivityRecord) activityJSON {
	return activityJSON{
		ID:             rec.ID,
		RelationshipID: rec.RelationshipID,
		ExternalID:     rec.ExternalID,
		Kind:           rec.Kind,
		AuthorKey:      rec.AuthorKey,
		AuthorName:     rec.AuthorName,
		AuthorAddress:  rec.AuthorAddress,
		Score:          rec.Score,
		Comment:        rec.Comment,
		Negative:       rec.Negative,
		Alerted:        rec.Alerted,
		EventAt:        rec.EventAt,
		CreatedAt:      rec.CreatedAt,
	}
}

type alertJSON struct {
	ID          string     `json:"id"`
	ActivityID  int64      `json:"activity_id"`
	Type        string     `json:"type"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	MessageID   string     `json:"message_id"`
	SentAt      time.Time  `json:"sent_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func convertAlert(a *domain.Alert) alertJSON {
	out := alertJSON{
		ID:         a.ID,
		ActivityID: a.ActivityID,
		Type:       a.Type,
		Channel:    a.Channel,
		Status:     string(a.Status),
		MessageID:  a.MessageID,
		SentAt:     a.SentAt,
	}
	if !a.RespondedAt.IsZero() {
		t := a.RespondedAt
		out.RespondedAt = &t
	}
	return out
}

type defenseJSON struct {
	ID         int64     `json:"id"`
	ActivityID int64     `json:"activity_id"`
	TargetKey  string    `json:"target_userkey"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment"`
	Status     string    `json:"status"`
	ExternalID string    `json:"external_id,omitempty"`
	TxRef      string    `json:"tx_ref,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func convertDefense(d *domain.Defense) defenseJSON {
	return defenseJSON{
		ID:         d.ID,
		ActivityID: d.ActivityID,
		TargetKey:  d.TargetKey,
		Score:      d.Score,
		Comment:    d.Comment,
		Status:     string(d.Status),
		ExternalID: d.ExternalID,
		TxRef:      d.TxRef,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type channelJSON struct {
	Name       string    `json:"name"`
	Enabled    bool      `json:"enabled"`
	Configured bool      `json:"configured"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type cycleJSON struct {
	ID                   int64     `json:"id"`
	RelationshipsChecked int       `json:"relationships_checked"`
	ActivitiesFound      int       `json:"activities_found"`
	NewNegative          int       `json:"new_negative"`
	AlertsSent           int       `json:"alerts_sent"`
	Errors               []string  `json:"errors"`
	DurationMs           int64     `json:"duration_ms"`
	RanAt                time.Time `json:"ran_at"`
}

func convertCycle(c *domain.CycleLog) cycleJSON {
	errs := c.Errors
	if errs == nil {
		errs = []string{}
	}
	return cycleJSON{
		ID:                   c.ID,
		RelationshipsChecked: c.RelationshipsChecked,
		ActivitiesFound:      c.ActivitiesFound,
		NewNegative:          c.NewNegative,
		AlertsSent:           c.AlertsSent,
		Errors:               errs,
		DurationMs:           c.DurationMs,
		RanAt:                c.RanAt,
	}
}

// ============ Helpers ============

func queryInt(r *http.Request, name string, def int) int {
	if val := r.URL.Query().Get(name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrCycleRunning):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCredentialExpired), errors.Is(err, domain.ErrCredentialInvalid):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
