// Package rollout вычисляет доступность feature flags для пользователя.
//
// Порядок правил (первое совпадение побеждает): персональный override,
// отсутствующий флаг, несовпадение окружения, глобальное выключение,
// процентная раскатка. Любая ошибка хранилища трактуется как "выключено".
package rollout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
	"github.com/iudanet/aishu/internal/validation"
)

// Reason объясняет, какое правило определило результат
type Reason string

const (
	ReasonOverride    Reason = "override"
	ReasonNotFound    Reason = "not_found"
	ReasonEnvironment Reason = "environment"
	ReasonDisabled    Reason = "disabled"
	ReasonFullRollout Reason = "full_rollout"
	ReasonZeroRollout Reason = "zero_rollout"
	ReasonBucket      Reason = "bucket"
	ReasonRandom      Reason = "random"
	ReasonStoreError  Reason = "store_error"
)

// UnknownFlag метка метрик для имен, которых нет в хранилище.
// Имя приходит от клиента, поэтому как метку его использовать нельзя
const UnknownFlag = "_unknown"

// ErrMissingActor административное действие без автора
var ErrMissingActor = errors.New("actor id is required")

// Decision результат вычисления флага
type Decision struct {
	Flag    string `json:"flag"`
	Reason  Reason `json:"reason"`
	Enabled bool   `json:"enabled"`
}

// EvaluationTracker принимает записи аналитики; Track не должен блокировать
type EvaluationTracker interface {
	Track(evaluation models.FlagEvaluation)
}

// Observer получает уведомления о каждом вычислении (метрики)
type Observer interface {
	ObserveEvaluation(flag string, reason Reason, enabled bool)
}

// Gate вычисляет флаги поверх внешнего хранилища
// Собственного изменяемого состояния не имеет
type Gate struct {
	store    storage.FlagStorage
	audit    storage.AuditStorage
	tracker  EvaluationTracker
	observer Observer
	logger   *slog.Logger
	draw     func() int
	now      func() time.Time
	env      models.Environment
}

// Option настраивает Gate
type Option func(*Gate)

// WithTracker подключает асинхронную аналитику вычислений
func WithTracker(tracker EvaluationTracker) Option {
	return func(g *Gate) {
		g.tracker = tracker
	}
}

// WithObserver подключает метрики
func WithObserver(observer Observer) Option {
	return func(g *Gate) {
		g.observer = observer
	}
}

// WithAudit подключает журнал административных изменений
func WithAudit(audit storage.AuditStorage) Option {
	return func(g *Gate) {
		g.audit = audit
	}
}

// WithDraw подменяет случайный выбор для анонимных пользователей
// draw должна возвращать значение из [0,100)
func WithDraw(draw func() int) Option {
	return func(g *Gate) {
		g.draw = draw
	}
}

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New создает Gate для окружения env
func New(store storage.FlagStorage, env models.Environment, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		env:    env,
		logger: logger,
		draw:   func() int { return rand.IntN(bucketCount) },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Environment возвращает окружение, для которого вычисляются флаги
func (g *Gate) Environment() models.Environment {
	return g.env
}

// Evaluate сообщает, включен ли флаг для пользователя
// userID пустой для анонимных пользователей
func (g *Gate) Evaluate(ctx context.Context, name, userID string) bool {
	return g.Decide(ctx, name, userID).Enabled
}

// Decide вычисляет флаг и возвращает результат вместе с причиной
func (g *Gate) Decide(ctx context.Context, name, userID string) Decision {
	d := g.decide(ctx, name, userID)
	g.record(d, userID)
	return d
}

func (g *Gate) decide(ctx context.Context, name, userID string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "panic during flag evaluation",
				slog.String("flag", name),
				slog.Any("panic", r))
			d = Decision{Flag: name, Reason: ReasonStoreError}
		}
	}()

	if od, ok := g.checkOverride(ctx, name, userID); ok {
		return od
	}

	flag, err := g.store.GetFlag(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrFlagNotFound) {
			g.logger.WarnContext(ctx, "feature flag not found", slog.String("flag", name))
			return Decision{Flag: name, Reason: ReasonNotFound}
		}
		g.logger.ErrorContext(ctx, "failed to load feature flag",
			slog.String("flag", name),
			slog.Any("error", err))
		return Decision{Flag: name, Reason: ReasonStoreError}
	}

	return g.EvaluateFlag(flag, userID)
}

// checkOverride возвращает решение по override, если он есть
// ok=true также при ошибке хранилища: вычисление завершается с отказом
func (g *Gate) checkOverride(ctx context.Context, name, userID string) (Decision, bool) {
	if userID == "" {
		return Decision{}, false
	}

	override, err := g.store.GetOverride(ctx, name, userID)
	switch {
	case err == nil:
		return Decision{Flag: name, Enabled: override.Enabled, Reason: ReasonOverride}, true
	case errors.Is(err, storage.ErrOverrideNotFound):
		return Decision{}, false
	default:
		g.logger.ErrorContext(ctx, "failed to load flag override",
			slog.String("flag", name),
			slog.Any("error", err))
		return Decision{Flag: name, Reason: ReasonStoreError}, true
	}
}

// EvaluateFlag применяет правила окружения, выключателя и раскатки
// к уже загруженному флагу. Overrides не учитываются
func (g *Gate) EvaluateFlag(flag *models.FeatureFlag, userID string) Decision {
	d := Decision{Flag: flag.Name}

	switch {
	case flag.Environment != models.EnvAll && flag.Environment != g.env:
		d.Reason = ReasonEnvironment
	case !flag.Enabled:
		d.Reason = ReasonDisabled
	case flag.RolloutPercentage >= validation.MaxRolloutPercentage:
		d.Enabled, d.Reason = true, ReasonFullRollout
	case flag.RolloutPercentage <= validation.MinRolloutPercentage:
		d.Reason = ReasonZeroRollout
	case userID == "":
		// Нет стабильной идентичности: случайный выбор на каждый запрос
		d.Enabled, d.Reason = g.draw() < flag.RolloutPercentage, ReasonRandom
	default:
		d.Enabled, d.Reason = Bucket(userID, flag.Name) < flag.RolloutPercentage, ReasonBucket
	}

	return d
}

// EvaluateAll вычисляет все известные флаги для пользователя
// Ошибка получения списка дает пустой результат
func (g *Gate) EvaluateAll(ctx context.Context, userID string) map[string]bool {
	result := make(map[string]bool)

	flags, err := g.store.ListFlags(ctx)
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to list feature flags", slog.Any("error", err))
		return result
	}

	for _, flag := range flags {
		d, ok := g.checkOverride(ctx, flag.Name, userID)
		if !ok {
			d = g.EvaluateFlag(flag, userID)
		}
		g.record(d, userID)
		result[flag.Name] = d.Enabled
	}

	return result
}

// record отправляет аналитику и метрики, не влияя на результат
// Неизвестные флаги не пишутся в аналитику и сводятся к одной метке
func (g *Gate) record(d Decision, userID string) {
	if d.Reason == ReasonNotFound {
		if g.observer != nil {
			g.observer.ObserveEvaluation(UnknownFlag, d.Reason, d.Enabled)
		}
		return
	}
	if g.observer != nil {
		g.observer.ObserveEvaluation(d.Flag, d.Reason, d.Enabled)
	}
	if g.tracker != nil {
		g.tracker.Track(models.FlagEvaluation{
			ID:          uuid.NewString(),
			FlagName:    d.Flag,
			UserID:      userID,
			Enabled:     d.Enabled,
			Reason:      string(d.Reason),
			EvaluatedAt: g.now(),
		})
	}
}

// SetFlag создает или частично обновляет флаг от имени actorID
func (g *Gate) SetFlag(ctx context.Context, name string, patch models.FlagPatch, actorID string) (*models.FeatureFlag, error) {
	if actorID == "" {
		return nil, ErrMissingActor
	}
	if err := validation.ValidateFlagName(name); err != nil {
		return nil, err
	}
	if patch.RolloutPercentage != nil {
		if err := validation.ValidateRolloutPercentage(*patch.RolloutPercentage); err != nil {
			return nil, err
		}
	}
	if patch.Environment != nil {
		env, err := validation.ParseEnvironment(string(*patch.Environment), true)
		if err != nil {
			return nil, err
		}
		patch.Environment = &env
	}

	now := g.now()
	flag, err := g.store.GetFlag(ctx, name)
	switch {
	case errors.Is(err, storage.ErrFlagNotFound):
		// Новый флаг создается выключенным, пока патч не скажет иначе
		flag = &models.FeatureFlag{
			Name:        name,
			Environment: models.EnvAll,
			CreatedAt:   now,
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load flag %q: %w", name, err)
	}

	if patch.Enabled != nil {
		flag.Enabled = *patch.Enabled
	}
	if patch.RolloutPercentage != nil {
		flag.RolloutPercentage = *patch.RolloutPercentage
	}
	if patch.Environment != nil {
		flag.Environment = *patch.Environment
	}
	if patch.Description != nil {
		flag.Description = *patch.Description
	}
	flag.UpdatedBy = actorID
	flag.UpdatedAt = now

	if err := g.store.UpsertFlag(ctx, flag); err != nil {
		return nil, fmt.Errorf("failed to save flag %q: %w", name, err)
	}

	g.logger.InfoContext(ctx, "feature flag updated",
		slog.String("flag", name),
		slog.String("actor_id", actorID),
		slog.Bool("enabled", flag.Enabled),
		slog.Int("rollout_percentage", flag.RolloutPercentage),
		slog.String("environment", string(flag.Environment)))
	g.writeAudit(ctx, name, actorID, models.AuditFlagUpsert, patch)

	return flag, nil
}

// SetOverride включает или выключает флаг для конкретного пользователя
// Возвращает false без изменений, если флаг не существует или хранилище недоступно
func (g *Gate) SetOverride(ctx context.Context, name, userID string, enabled bool, actorID string) bool {
	if userID == "" || actorID == "" {
		return false
	}

	if _, err := g.store.GetFlag(ctx, name); err != nil {
		g.logger.WarnContext(ctx, "cannot override unknown flag",
			slog.String("flag", name),
			slog.Any("error", err))
		return false
	}

	override := &models.FlagOverride{
		FlagName:  name,
		UserID:    userID,
		Enabled:   enabled,
		CreatedBy: actorID,
		CreatedAt: g.now(),
	}
	if err := g.store.UpsertOverride(ctx, override); err != nil {
		g.logger.ErrorContext(ctx, "failed to save flag override",
			slog.String("flag", name),
			slog.Any("error", err))
		return false
	}

	g.logger.InfoContext(ctx, "flag override set",
		slog.String("flag", name),
		slog.String("user_id", userID),
		slog.Bool("enabled", enabled),
		slog.String("actor_id", actorID))
	g.writeAudit(ctx, name, actorID, models.AuditOverrideSet, map[string]any{
		"user_id": userID,
		"enabled": enabled,
	})

	return true
}

// RemoveOverride удаляет override пользователя
// Возвращает false, если override не было
func (g *Gate) RemoveOverride(ctx context.Context, name, userID, actorID string) bool {
	if err := g.store.DeleteOverride(ctx, name, userID); err != nil {
		if !errors.Is(err, storage.ErrOverrideNotFound) {
			g.logger.ErrorContext(ctx, "failed to delete flag override",
				slog.String("flag", name),
				slog.Any("error", err))
		}
		return false
	}

	g.logger.InfoContext(ctx, "flag override removed",
		slog.String("flag", name),
		slog.String("user_id", userID),
		slog.String("actor_id", actorID))
	g.writeAudit(ctx, name, actorID, models.AuditOverrideRemove, map[string]any{
		"user_id": userID,
	})

	return true
}

// writeAudit пишет запись журнала; ошибка журнала не отменяет изменение
func (g *Gate) writeAudit(ctx context.Context, flag, actorID string, action models.AuditAction, details any) {
	if g.audit == nil {
		return
	}

	raw, err := json.Marshal(details)
	if err != nil {
		raw = nil
	}

	entry := &models.AuditEntry{
		ID:        uuid.NewString(),
		FlagName:  flag,
		ActorID:   actorID,
		Action:    action,
		Details:   string(raw),
		CreatedAt: g.now(),
	}
	if err := g.audit.RecordAudit(ctx, entry); err != nil {
		g.logger.ErrorContext(ctx, "failed to write audit entry",
			slog.String("flag", flag),
			slog.String("action", string(action)),
			slog.Any("error", err))
	}
}
