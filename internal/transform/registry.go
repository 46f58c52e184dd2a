package transform

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/JonMunkholm/stageload/internal/domain"
)

// Names of the built-in transformers as referenced by validation rules.
const (
	NameNoop         = "noop"
	NamePinControl   = "pm-pin-control"
	NamePinDigit     = "pm-pin-digit"
	NameSentinelDate = "im-sentinel-date"
)

// Constructor builds a fresh transformer.
type Constructor func() Transformer

var builtins = map[string]Constructor{
	NameNoop:         func() Transformer { return Noop{} },
	NamePinControl:   func() Transformer { return PinControl{} },
	NamePinDigit:     func() Transformer { return PinDigit{} },
	NameSentinelDate: func() Transformer { return SentinelDate{} },
}

// Names returns the registered transformer names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name resolves to a transformer.
func Known(name string) bool {
	_, ok := builtins[name]
	return ok
}

// Registry hands out initialized transformers for validation rules. Each
// name is constructed and initialized at most once; later lookups return
// the cached instance.
type Registry struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	cache        map[string]Transformer
}

// NewRegistry returns a registry over the built-in transformers.
func NewRegistry() *Registry {
	return newRegistry(builtins)
}

func newRegistry(constructors map[string]Constructor) *Registry {
	return &Registry{
		constructors: constructors,
		cache:        make(map[string]Transformer),
	}
}

// ForRule returns the transformer named by rule. A nil rule, a rule with
// transformation disabled or without a name yields Noop. Names that cannot
// be constructed or initialized also yield Noop; the failure is logged.
func (r *Registry) ForRule(rule *domain.Rule) Transformer {
	if rule == nil || !rule.TransformEnabled || rule.Transformer == "" {
		return Noop{}
	}
	name := rule.Transformer

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.cache[name]; ok {
		return t
	}

	t, err := r.build(name)
	if err != nil {
		slog.Warn("transformer unavailable, using noop",
			"pattern", rule.FilePattern,
			"error", &domain.TransformFailure{Transformer: name, Err: err},
		)
		return Noop{}
	}

	r.cache[name] = t
	slog.Info("transformer initialized", "name", name, "pattern", rule.FilePattern)
	return t
}

func (r *Registry) build(name string) (t Transformer, err error) {
	ctor, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown transformer %q", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			t, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()

	t = ctor()
	if t == nil {
		return nil, fmt.Errorf("constructor returned nil")
	}
	if err := t.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return t, nil
}

// Close runs Cleanup on every cached transformer and empties the cache.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.cache {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Warn("transformer cleanup panicked", "name", name, "panic", rec)
				}
			}()
			t.Cleanup()
		}()
		delete(r.cache, name)
	}
}

// Len reports how many transformers are cached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
