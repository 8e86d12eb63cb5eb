package fieldtype

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"verdict/internal/logger"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/models"
)

// Registry caches the per-field cast configuration and applies it to inbound
// events. Casting happens once per field per evaluation, before any rule
// executes; a single failing field aborts the whole request.
type Registry struct {
	repo   Repository
	types  map[string]FieldType
	mu     sync.RWMutex
	logger logger.Logger
}

func NewRegistry(repo Repository, log logger.Logger) *Registry {
	return &Registry{
		repo:   repo,
		types:  make(map[string]FieldType),
		logger: log,
	}
}

func (r *Registry) Reload(ctx context.Context) error {
	types, err := r.repo.GetConfiguredTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load field types: %w", err)
	}

	byName := make(map[string]FieldType, len(types))
	for _, ft := range types {
		byName[ft.FieldName] = ft
	}

	r.mu.Lock()
	r.types = byName
	r.mu.Unlock()

	r.logger.InfowCtx(ctx, "Reloaded field type registry",
		"fields_count", len(byName),
	)
	return nil
}

func (r *Registry) StartReloader(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.ErrorwCtx(ctx, "Failed to reload field types",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ConfiguredKind returns the semantic type for a field, KindAsIs when the
// field has no configuration.
func (r *Registry) ConfiguredKind(fieldName string) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ft, ok := r.types[fieldName]; ok {
		return ft.Kind
	}
	return KindAsIs
}

// CastEvent normalizes every configured field of the event. The input event is
// never mutated; unconfigured fields pass through unchanged.
func (r *Registry) CastEvent(event models.Event) (models.NormalizedEvent, error) {
	r.mu.RLock()
	types := r.types
	r.mu.RUnlock()

	fields := make(map[string]interface{}, len(event.Fields))
	for name, raw := range event.Fields {
		ft, ok := types[name]
		if !ok || ft.Kind == KindAsIs {
			fields[name] = raw
			continue
		}

		value, err := castValue(ft, raw)
		if err != nil {
			return models.NormalizedEvent{}, pkgerrors.ErrCast.
				WithCause(err).
				WithDetail("field", name).
				WithDetail("target_type", string(ft.Kind))
		}
		fields[name] = value
	}

	return models.NormalizedEvent{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Fields:    fields,
	}, nil
}

// Cast converts one raw value to the field's configured type.
func (r *Registry) Cast(fieldName string, raw interface{}) (interface{}, error) {
	r.mu.RLock()
	ft, ok := r.types[fieldName]
	r.mu.RUnlock()

	if !ok || ft.Kind == KindAsIs {
		return raw, nil
	}

	value, err := castValue(ft, raw)
	if err != nil {
		return nil, pkgerrors.ErrCast.
			WithCause(err).
			WithDetail("field", fieldName).
			WithDetail("target_type", string(ft.Kind))
	}
	return value, nil
}

func castValue(ft FieldType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch ft.Kind {
	case KindInteger:
		return castInteger(raw)
	case KindFloat:
		return castFloat(raw)
	case KindString:
		return castString(raw)
	case KindBoolean:
		return castBoolean(raw), nil
	case KindDatetime:
		return castDatetime(raw, ft.Format)
	default:
		return raw, nil
	}
}

func castInteger(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("value %v has a fractional part", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot cast %T to integer", raw)
	}
}

func castFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot cast %T to float", raw)
	}
}

func castString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot cast %T to string", raw)
	}
}

// castBoolean treats true/1/"1"/"true"/"yes"/"on" (case-insensitive) as true,
// everything else as false. It never fails.
func castBoolean(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v == 1
	case int64:
		return v == 1
	case int:
		return v == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	default:
		return false
	}
}

func castDatetime(raw interface{}, format string) (time.Time, error) {
	if format == "" {
		format = DefaultDatetimeFormat
	}

	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(format, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse %q with layout %q", v, format)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("cannot cast %T to datetime", raw)
	}
}
