// Package rules reads validation rules from a YAML file and seeds them into
// the rule store.
//
// The file holds a single "rules" list:
//
//	rules:
//	  - file_pattern: PM1
//	    expected_delimiters: 28
//	    validation_enabled: true
//	    auto_fix: true
//	    transformer: pm-pin-control
//	    transform_enabled: true
package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/transform"
	"github.com/spf13/viper"
)

// Load reads rules from the YAML file at path.
func Load(path string) ([]domain.Rule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads rules from YAML content.
func Parse(r io.Reader) ([]domain.Rule, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) ([]domain.Rule, error) {
	var list []domain.Rule
	if err := v.UnmarshalKey("rules", &list); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(list))
	for i := range list {
		r := &list[i]
		r.FilePattern = strings.TrimSpace(r.FilePattern)
		if err := Check(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i+1, err))
			continue
		}
		if seen[r.FilePattern] {
			errs = append(errs, fmt.Errorf("rule %d: duplicate file_pattern %q", i+1, r.FilePattern))
		}
		seen[r.FilePattern] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return list, nil
}

// Check reports the first problem with a rule definition.
func Check(r *domain.Rule) error {
	switch {
	case r.FilePattern == "":
		return errors.New("file_pattern is required")
	case r.ExpectedDelimiters < 0:
		return fmt.Errorf("%s: expected_delimiters must be non-negative", r.FilePattern)
	case r.Transformer != "" && !transform.Known(r.Transformer):
		return fmt.Errorf("%s: unknown transformer %q (known: %s)",
			r.FilePattern, r.Transformer, strings.Join(transform.Names(), ", "))
	}
	return nil
}

// Seed upserts every rule and returns how many were written.
func Seed(ctx context.Context, store domain.RuleStore, list []domain.Rule) (int, error) {
	for i := range list {
		if err := store.Upsert(ctx, &list[i]); err != nil {
			return i, fmt.Errorf("seed rule %s: %w", list[i].FilePattern, err)
		}
	}
	slog.Info("validation rules seeded", "count", len(list))
	return len(list), nil
}

// SeedFile loads path and seeds its rules.
func SeedFile(ctx context.Context, store domain.RuleStore, path string) (int, error) {
	list, err := Load(path)
	if err != nil {
		return 0, err
	}
	return Seed(ctx, store, list)
}
