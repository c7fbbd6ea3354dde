// Package alerts keeps a persisted, bounded log of security-relevant events.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/model"
)

// maxAlerts bounds the log; the oldest entries are evicted past it.
const maxAlerts = 50

// Log records and serves security alerts. Record never fails the caller:
// persistence errors are logged and swallowed, alerting stays best-effort.
type Log struct {
	store  kvstore.Store
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex // serializes record+evict
}

// New constructs a Log. logger may be nil.
func New(store kvstore.Store, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{store: store, logger: logger, now: time.Now}
}

// Record appends an alert, evicting the oldest entries beyond the cap.
func (l *Log) Record(ctx context.Context, severity model.AlertSeverity, title, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := uuid.NewV4()
	if err != nil {
		l.logger.Error("alert id generation failed", zap.Error(err))
		return
	}
	alert := model.SecurityAlert{
		ID:         id,
		Severity:   severity,
		Title:      title,
		Detail:     detail,
		OccurredAt: l.now().UTC(),
	}
	b, err := json.Marshal(alert)
	if err != nil {
		l.logger.Error("alert marshal failed", zap.Error(err))
		return
	}
	if err := l.store.Put(ctx, kvstore.NamespaceAlerts, id.String(), b); err != nil {
		l.logger.Error("alert persist failed", zap.Error(err))
		return
	}
	l.evict(ctx)
}

func (l *Log) evict(ctx context.Context) {
	all, err := l.list(ctx)
	if err != nil {
		l.logger.Error("alert eviction scan failed", zap.Error(err))
		return
	}
	for i := maxAlerts; i < len(all); i++ {
		if err := l.store.Delete(ctx, kvstore.NamespaceAlerts, all[i].ID.String()); err != nil {
			l.logger.Error("alert eviction failed", zap.String("id", all[i].ID.String()), zap.Error(err))
		}
	}
}

// List returns alerts newest first.
func (l *Log) List(ctx context.Context) ([]model.SecurityAlert, error) {
	return l.list(ctx)
}

func (l *Log) list(ctx context.Context) ([]model.SecurityAlert, error) {
	keys, err := l.store.ListKeys(ctx, kvstore.NamespaceAlerts)
	if err != nil {
		return nil, err
	}
	out := make([]model.SecurityAlert, 0, len(keys))
	for _, k := range keys {
		b, err := l.store.Get(ctx, kvstore.NamespaceAlerts, k)
		if err != nil {
			return nil, err
		}
		var alert model.SecurityAlert
		if err := json.Unmarshal(b, &alert); err != nil {
			return nil, fmt.Errorf("%w: corrupt alert record %s: %w", errs.ErrStorage, k, err)
		}
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

// MarkRead flags a single alert as read.
func (l *Log) MarkRead(ctx context.Context, id uuid.UUID) error {
	b, err := l.store.Get(ctx, kvstore.NamespaceAlerts, id.String())
	if err != nil {
		return err
	}
	var alert model.SecurityAlert
	if err := json.Unmarshal(b, &alert); err != nil {
		return fmt.Errorf("%w: corrupt alert record %s: %w", errs.ErrStorage, id, err)
	}
	alert.Read = true
	b, err = json.Marshal(alert)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, kvstore.NamespaceAlerts, id.String(), b)
}

// UnreadCount reports how many alerts have not been read.
func (l *Log) UnreadCount(ctx context.Context) (int, error) {
	all, err := l.list(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, alert := range all {
		if !alert.Read {
			n++
		}
	}
	return n, nil
}
