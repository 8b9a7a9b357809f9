package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"heroranker.app/internal/sim/world/kernel/model"
)

type Tuning struct {
	TickDurationMs     int `yaml:"tick_duration_ms"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	SyncEveryMs        int `yaml:"sync_every_ms"`

	// Offline catch-up window. Shorter absences produce nothing; longer ones are clamped.
	OfflineMinSeconds int `yaml:"offline_min_seconds"`
	OfflineMaxSeconds int `yaml:"offline_max_seconds"`

	BaseCaps          model.Caps        `yaml:"base_caps"`
	StartingResources model.ResourceSet `yaml:"starting_resources"`

	MinBuilderDroids     int     `yaml:"min_builder_droids"`
	MaxBuilderDroids     int     `yaml:"max_builder_droids"`
	BuilderDroidGemCost  float64 `yaml:"builder_droid_gem_cost"`
	RecruitGemCost       float64 `yaml:"recruit_gem_cost"`
	SpeedupSecondsPerGem float64 `yaml:"speedup_seconds_per_gem"`

	KeepSaveFiles int `yaml:"keep_save_files"`
}

func Defaults() Tuning {
	return Tuning{
		TickDurationMs:     1000,
		SnapshotEveryTicks: 5,
		SyncEveryMs:        30_000,
		OfflineMinSeconds:  10,
		OfflineMaxSeconds:  12 * 60 * 60,
		BaseCaps: model.Caps{
			Credits:   10000,
			Biomass:   5000,
			Nanosteel: 5000,
		},
		StartingResources: model.ResourceSet{
			Credits:   1000,
			Biomass:   500,
			Nanosteel: 500,
			Gems:      50,
		},
		MinBuilderDroids:     2,
		MaxBuilderDroids:     5,
		BuilderDroidGemCost:  250,
		RecruitGemCost:       30,
		SpeedupSecondsPerGem: 60,
		KeepSaveFiles:        20,
	}
}

// Load reads a YAML overlay on top of Defaults; fields absent from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickDurationMs <= 0:
		return fmt.Errorf("tick_duration_ms must be > 0")
	case t.SnapshotEveryTicks <= 0:
		return fmt.Errorf("snapshot_every_ticks must be > 0")
	case t.SyncEveryMs < 0:
		return fmt.Errorf("sync_every_ms must be >= 0")
	case t.OfflineMinSeconds < 0:
		return fmt.Errorf("offline_min_seconds must be >= 0")
	case t.OfflineMaxSeconds < t.OfflineMinSeconds:
		return fmt.Errorf("offline_max_seconds (%d) < offline_min_seconds (%d)", t.OfflineMaxSeconds, t.OfflineMinSeconds)
	case t.MinBuilderDroids < 1:
		return fmt.Errorf("min_builder_droids must be >= 1")
	case t.MaxBuilderDroids < t.MinBuilderDroids:
		return fmt.Errorf("max_builder_droids (%d) < min_builder_droids (%d)", t.MaxBuilderDroids, t.MinBuilderDroids)
	case t.SpeedupSecondsPerGem <= 0:
		return fmt.Errorf("speedup_seconds_per_gem must be > 0")
	case t.BuilderDroidGemCost < 0 || t.RecruitGemCost < 0:
		return fmt.Errorf("gem costs must be >= 0")
	case t.KeepSaveFiles < 0:
		return fmt.Errorf("keep_save_files must be >= 0")
	}
	for _, k := range model.CappedResources() {
		if limit, _ := t.BaseCaps.Limit(k); limit <= 0 {
			return fmt.Errorf("base_caps.%s must be > 0", k)
		}
	}
	for _, k := range model.AllResources() {
		if t.StartingResources.Get(k) < 0 {
			return fmt.Errorf("starting_resources.%s must be >= 0", k)
		}
	}
	return nil
}

// TickSeconds is the simulated length of one tick.
func (t Tuning) TickSeconds() float64 {
	return float64(t.TickDurationMs) / 1000
}
