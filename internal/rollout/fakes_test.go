package rollout

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore in-memory реализация хранилищ с возможностью внедрения ошибок
type memStore struct {
	flags       map[string]*models.FeatureFlag
	overrides   map[string]*models.FlagOverride
	audit       []*models.AuditEntry
	evaluations []*models.FlagEvaluation

	getFlagErr     error
	listFlagsErr   error
	getOverrideErr error
	upsertErr      error
	auditErr       error
	panicOnGet     bool

	getFlagCalls  int
	listFlagCalls int

	mu sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		flags:     make(map[string]*models.FeatureFlag),
		overrides: make(map[string]*models.FlagOverride),
	}
}

func overrideKey(flag, user string) string {
	return flag + "\x00" + user
}

func (m *memStore) put(flag *models.FeatureFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *flag
	m.flags[flag.Name] = &cp
}

func (m *memStore) GetFlag(ctx context.Context, name string) (*models.FeatureFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getFlagCalls++
	if m.panicOnGet {
		panic("store exploded")
	}
	if m.getFlagErr != nil {
		return nil, m.getFlagErr
	}
	flag, ok := m.flags[name]
	if !ok {
		return nil, storage.ErrFlagNotFound
	}
	cp := *flag
	return &cp, nil
}

func (m *memStore) ListFlags(ctx context.Context) ([]*models.FeatureFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFlagCalls++
	if m.listFlagsErr != nil {
		return nil, m.listFlagsErr
	}
	flags := make([]*models.FeatureFlag, 0, len(m.flags))
	for _, f := range m.flags {
		cp := *f
		flags = append(flags, &cp)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return flags, nil
}

func (m *memStore) UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *flag
	if prev, ok := m.flags[flag.Name]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	m.flags[flag.Name] = &cp
	return nil
}

func (m *memStore) GetOverride(ctx context.Context, flagName, userID string) (*models.FlagOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getOverrideErr != nil {
		return nil, m.getOverrideErr
	}
	o, ok := m.overrides[overrideKey(flagName, userID)]
	if !ok {
		return nil, storage.ErrOverrideNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListOverrides(ctx context.Context, flagName string) ([]*models.FlagOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.FlagOverride
	for _, o := range m.overrides {
		if o.FlagName == flagName {
			cp := *o
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *memStore) UpsertOverride(ctx context.Context, override *models.FlagOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if _, ok := m.flags[override.FlagName]; !ok {
		return storage.ErrFlagNotFound
	}
	cp := *override
	m.overrides[overrideKey(override.FlagName, override.UserID)] = &cp
	return nil
}

func (m *memStore) DeleteOverride(ctx context.Context, flagName, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := overrideKey(flagName, userID)
	if _, ok := m.overrides[key]; !ok {
		return storage.ErrOverrideNotFound
	}
	delete(m.overrides, key)
	return nil
}

func (m *memStore) RecordAudit(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auditErr != nil {
		return m.auditErr
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *memStore) ListAudit(ctx context.Context, flagName string, limit int) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(result) < limit; i-- {
		if m.audit[i].FlagName == flagName {
			result = append(result, m.audit[i])
		}
	}
	return result, nil
}

func (m *memStore) RecordEvaluation(ctx context.Context, e *models.FlagEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.evaluations = append(m.evaluations, &cp)
	return nil
}

func (m *memStore) EvaluationStats(ctx context.Context, flagName string, since int64) (*models.EvaluationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.EvaluationStats{FlagName: flagName}
	for _, e := range m.evaluations {
		if e.FlagName == flagName && e.EvaluatedAt.UnixMilli() >= since {
			stats.Total++
			if e.Enabled {
				stats.Enabled++
			}
		}
	}
	return stats, nil
}

// recordingTracker синхронно собирает записи аналитики
type recordingTracker struct {
	events []models.FlagEvaluation
	mu     sync.Mutex
}

func (r *recordingTracker) Track(e models.FlagEvaluation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingTracker) snapshot() []models.FlagEvaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.FlagEvaluation(nil), r.events...)
}

// countingObserver считает вычисления по причинам и именам флагов
type countingObserver struct {
	reasons map[Reason]int
	flags   map[string]int
	dropped int
	mu      sync.Mutex
}

func newCountingObserver() *countingObserver {
	return &countingObserver{reasons: make(map[Reason]int), flags: make(map[string]int)}
}

func (o *countingObserver) ObserveEvaluation(flag string, reason Reason, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons[reason]++
	o.flags[flag]++
}

func (o *countingObserver) ObserveDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}
