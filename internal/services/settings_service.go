package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/viper"

	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// SettingsService loads the engine configuration. A settings file wins over
// the stored documents; anything absent falls back to settings.Defaults.
type SettingsService struct {
	repo   settings.Repository
	file   string
	logger *logger.Logger
}

// NewSettingsService creates a settings service. file may be empty.
func NewSettingsService(repo settings.Repository, file string, log *logger.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		file:   file,
		logger: log.Component("settings"),
	}
}

// Load never fails because configuration is missing; it only degrades.
func (s *SettingsService) Load(ctx context.Context) *settings.Config {
	cfg := settings.Defaults()

	if s.file != "" {
		v := newSettingsViper()
		v.SetConfigFile(s.file)
		if err := v.ReadInConfig(); err != nil {
			s.logger.WarnWithErr(err, "Failed to read settings file, using stored configuration")
		} else {
			s.apply(cfg, v)
			s.apply(cfg, sub(v, "budgets"))
			return cfg
		}
	}

	if s.repo == nil {
		return cfg
	}
	for _, key := range []string{settings.KeyThresholds, settings.KeyBudgets} {
		doc, err := s.repo.Get(ctx, key)
		if err != nil {
			if !errors.IsCode(err, errors.ErrCodeConfigMissing) {
				s.logger.WithFields(map[string]interface{}{"key": key}).
					WarnWithErr(err, "Failed to read stored configuration, using defaults")
			}
			continue
		}
		v := newSettingsViper()
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(doc)); err != nil {
			s.logger.WithFields(map[string]interface{}{"key": key}).
				WarnWithErr(err, "Stored configuration is not valid JSON, using defaults")
			continue
		}
		s.apply(cfg, v)
	}
	return cfg
}

// Save validates a document by decoding it and stores it under key
func (s *SettingsService) Save(ctx context.Context, key string, doc []byte) error {
	if key != settings.KeyThresholds && key != settings.KeyBudgets {
		return errors.BadRequest("unknown settings key: " + key)
	}
	if !json.Valid(doc) {
		return errors.BadRequest("settings document must be JSON")
	}
	return s.repo.Put(ctx, key, doc)
}

func newSettingsViper() *viper.Viper {
	// service names may contain dots
	return viper.NewWithOptions(viper.KeyDelimiter("::"))
}

func sub(v *viper.Viper, key string) *viper.Viper {
	if !v.IsSet(key) {
		return nil
	}
	out := newSettingsViper()
	if m, ok := v.Get(key).(map[string]interface{}); ok {
		_ = out.MergeConfigMap(m)
	}
	return out
}

// apply replaces each section present in v. The anomaly section is merged
// field by field so a partial section keeps the remaining defaults.
func (s *SettingsService) apply(cfg *settings.Config, v *viper.Viper) {
	if v == nil {
		return
	}

	if v.IsSet("cost_thresholds") {
		var t settings.ThresholdConfig
		if err := v.UnmarshalKey("cost_thresholds", &t); err != nil {
			s.logger.WarnWithErr(err, "Invalid cost_thresholds, keeping defaults")
		} else {
			cfg.CostThresholds = t
		}
	}

	if v.IsSet("service_thresholds") {
		var limits map[string]settings.ServiceLimit
		if err := v.UnmarshalKey("service_thresholds", &limits); err != nil {
			s.logger.WarnWithErr(err, "Invalid service_thresholds, keeping defaults")
		} else {
			cfg.ServiceThresholds = make(settings.ServiceLimits, len(limits))
			for name, l := range limits {
				cfg.ServiceThresholds[strings.ToLower(name)] = l
			}
		}
	}

	if v.IsSet("anomaly_detection") {
		if err := v.UnmarshalKey("anomaly_detection", &cfg.AnomalyDetection); err != nil {
			s.logger.WarnWithErr(err, "Invalid anomaly_detection, keeping defaults")
		}
	}

	if v.IsSet("overall_budget") || v.IsSet("category_budgets") {
		var b settings.BudgetConfig
		if err := v.Unmarshal(&b); err != nil {
			s.logger.WarnWithErr(err, "Invalid budgets, ignoring")
		} else {
			cfg.Budgets = &b
		}
	}
}
