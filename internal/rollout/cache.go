package rollout

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
)

// DefaultRefreshInterval период обновления снимка флагов по умолчанию
const DefaultRefreshInterval = 30 * time.Second

var _ storage.FlagStorage = (*CachedStore)(nil)

// CachedStore кэширует флаги в памяти поверх FlagStorage
// Флаги читаются из снимка, который обновляет одна фоновая горутина;
// overrides и все записи идут напрямую в хранилище
type CachedStore struct {
	storage.FlagStorage

	logger   *slog.Logger
	flags    map[string]*models.FeatureFlag
	stop     chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
	loaded   bool
}

// NewCachedStore оборачивает store; interval <= 0 означает значение по умолчанию
func NewCachedStore(store storage.FlagStorage, interval time.Duration, logger *slog.Logger) *CachedStore {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &CachedStore{
		FlagStorage: store,
		logger:      logger,
		interval:    interval,
		flags:       make(map[string]*models.FeatureFlag),
		stop:        make(chan struct{}),
	}
}

// Start загружает снимок и запускает периодическое обновление
// Ошибка первой загрузки не фатальна: до успешного обновления чтения идут в хранилище
func (c *CachedStore) Start(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "initial flag cache load failed", slog.Any("error", err))
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.WarnContext(ctx, "flag cache refresh failed", slog.Any("error", err))
				}
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает фоновое обновление
func (c *CachedStore) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	c.wg.Wait()
}

// Refresh перечитывает все флаги из хранилища
func (c *CachedStore) Refresh(ctx context.Context) error {
	flags, err := c.FlagStorage.ListFlags(ctx)
	if err != nil {
		return err
	}

	snapshot := make(map[string]*models.FeatureFlag, len(flags))
	for _, flag := range flags {
		snapshot[flag.Name] = flag
	}

	c.mu.Lock()
	c.flags = snapshot
	c.loaded = true
	c.mu.Unlock()

	return nil
}

// GetFlag возвращает копию флага из снимка
func (c *CachedStore) GetFlag(ctx context.Context, name string) (*models.FeatureFlag, error) {
	c.mu.RLock()
	loaded := c.loaded
	flag, ok := c.flags[name]
	c.mu.RUnlock()

	if !loaded {
		return c.FlagStorage.GetFlag(ctx, name)
	}
	if !ok {
		return nil, storage.ErrFlagNotFound
	}

	cp := *flag
	return &cp, nil
}

// ListFlags возвращает копии всех флагов из снимка, упорядоченные по имени
func (c *CachedStore) ListFlags(ctx context.Context) ([]*models.FeatureFlag, error) {
	c.mu.RLock()
	if !c.loaded {
		c.mu.RUnlock()
		return c.FlagStorage.ListFlags(ctx)
	}
	flags := make([]*models.FeatureFlag, 0, len(c.flags))
	for _, flag := range c.flags {
		cp := *flag
		flags = append(flags, &cp)
	}
	c.mu.RUnlock()

	sort.Slice(flags, func(i, j int) bool {
		return flags[i].Name < flags[j].Name
	})

	return flags, nil
}

// UpsertFlag пишет флаг в хранилище и сразу обновляет его в снимке
func (c *CachedStore) UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error {
	if err := c.FlagStorage.UpsertFlag(ctx, flag); err != nil {
		return err
	}

	// Перечитываем, чтобы получить сохраненный created_at
	fresh, err := c.FlagStorage.GetFlag(ctx, flag.Name)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to reload flag after upsert",
			slog.String("flag", flag.Name),
			slog.Any("error", err))
		return nil
	}

	c.mu.Lock()
	c.flags[fresh.Name] = fresh
	c.mu.Unlock()

	return nil
}
