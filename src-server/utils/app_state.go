package utils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"learnadoodle/src-server/calendar"
	"learnadoodle/src-server/model"

	"github.com/olebedev/when"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type AppState struct {
	Config *Config
	RawDB  *sql.DB
	BunDB  *bun.DB
	When   *when.Parser
	Cron   *cron.Cron

	// the calendar cache's remote side
	Store       *model.Store
	MetricChans *MetricChans
	// set by the metric package before the first cache store is created
	CacheObserver calendar.Observer

	AppCloseSignalChan chan os.Signal

	shutdownMu    sync.Mutex
	shutdownChans []chan struct{}
	shutdownOnce  sync.Once

	// one calendar session per family
	cacheStoresMu sync.Mutex
	cacheStores   map[string]*calendar.CacheStore
}

// Open the sqlite database at path, creating it if needed.
func OpenDatabase(path string) (*sql.DB, error) {
	rawDB, err := sql.Open(sqliteshim.ShimName, path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("OpenDatabase: %w", err)
	}
	rawDB.SetMaxIdleConns(8)
	return rawDB, nil
}

func NewAppState(config *Config, rawDB *sql.DB) (*AppState, error) {
	as := &AppState{
		Config:             config,
		RawDB:              rawDB,
		When:               NewWhenParser(),
		MetricChans:        NewMetricChans(),
		AppCloseSignalChan: make(chan os.Signal, 1),
		cacheStores:        make(map[string]*calendar.CacheStore),
	}
	as.Cron = cron.New(cron.WithLocation(config.GetLocation()))

	// database
	as.BunDB = bun.NewDB(as.RawDB, sqlitedialect.New())
	as.BunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))
	if err := model.CreateSchema(context.Background(), as.BunDB); err != nil {
		return nil, fmt.Errorf("NewAppState: %w", err)
	}

	as.Store = model.NewStore(as.BunDB)
	as.Store.ReadLatency = as.MetricChans.DatabaseRead
	as.Store.WriteLatency = as.MetricChans.DatabaseWrite

	return as, nil
}

// GetCacheStore returns the family's calendar session, creating it on
// first use in the family's own timezone.
func (as *AppState) GetCacheStore(ctx context.Context, familyID string) (*calendar.CacheStore, error) {
	as.cacheStoresMu.Lock()
	defer as.cacheStoresMu.Unlock()

	if store, ok := as.cacheStores[familyID]; ok {
		return store, nil
	}

	family, err := as.Store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("GetCacheStore: %w", err)
	}
	loc := as.Config.GetLocation()
	if family.Timezone != "" {
		if familyLoc, err := time.LoadLocation(family.Timezone); err == nil {
			loc = familyLoc
		} else {
			slog.Warn("family timezone is invalid, using the default", "familyID", familyID, "timezone", family.Timezone)
		}
	}

	store := calendar.NewCacheStore(as.Store, calendar.Options{
		Observer:          as.CacheObserver,
		PlaceholderPrefix: as.Config.GetPlaceholderIDPrefix(),
		Location:          loc,
		AutoComplete:      calendar.AutoCompletePolicy{Threshold: as.Config.GetAutoCompleteThreshold()},
		Filters:           calendar.Filters{FamilyID: familyID},
		MutationTimeout:   as.Config.GetMutationTimeout(),
	})
	as.cacheStores[familyID] = store
	slog.Debug("calendar session created", "familyID", familyID, "timezone", loc)
	return store, nil
}

// Forget the family's session, the next request starts from an empty cache.
// Its months are unloaded too, so the observer sees them go.
func (as *AppState) DropCacheStore(familyID string) {
	as.cacheStoresMu.Lock()
	store, ok := as.cacheStores[familyID]
	delete(as.cacheStores, familyID)
	as.cacheStoresMu.Unlock()

	if ok {
		store.Cache().InvalidateAll()
	}
}

// Call fn for every live calendar session, ordered by family id.
func (as *AppState) IterateCacheStores(fn func(familyID string, store *calendar.CacheStore)) {
	as.cacheStoresMu.Lock()
	familyIDs := make([]string, 0, len(as.cacheStores))
	stores := make(map[string]*calendar.CacheStore, len(as.cacheStores))
	for familyID, store := range as.cacheStores {
		familyIDs = append(familyIDs, familyID)
		stores[familyID] = store
	}
	as.cacheStoresMu.Unlock()

	sort.Strings(familyIDs)
	for _, familyID := range familyIDs {
		fn(familyID, stores[familyID])
	}
}

// Returns a channel that is closed once GracefulShutdown runs.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	as.shutdownMu.Lock()
	defer as.shutdownMu.Unlock()
	ch := make(chan struct{})
	as.shutdownChans = append(as.shutdownChans, ch)
	return &ch
}

func (as *AppState) GracefulShutdown() {
	as.shutdownOnce.Do(func() {
		ctx := as.Cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			slog.Warn("scheduled jobs are still running, shutting down anyway")
		}

		as.shutdownMu.Lock()
		for _, ch := range as.shutdownChans {
			close(ch)
		}
		as.shutdownChans = nil
		as.shutdownMu.Unlock()

		if err := as.BunDB.Close(); err != nil {
			slog.Warn("can't close database", "error", err)
		}
	})
}
