package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"season-planner-api/pkg/models"
)

// SeasonFile is a season definition loaded from YAML.
type SeasonFile struct {
	Category  string
	UnitPrice decimal.Decimal
	Params    models.SeasonParameters
	Stores    []models.StoreProfile
}

type seasonYAML struct {
	Category  string `yaml:"category"`
	UnitPrice string `yaml:"unit_price"`
	Season    struct {
		ForecastHorizonWeeks   int     `yaml:"forecast_horizon_weeks"`
		SeasonStartDate        string  `yaml:"season_start_date"`
		ReplenishmentStrategy  string  `yaml:"replenishment_strategy"`
		DCHoldbackPct          float64 `yaml:"dc_holdback_pct"`
		MarkdownCheckpointWeek *int    `yaml:"markdown_checkpoint_week"`
	} `yaml:"season"`
	Stores []models.StoreProfile `yaml:"stores"`
}

// LoadSeasonFile reads and validates a season YAML file.
func LoadSeasonFile(path string) (*SeasonFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read season file: %w", err)
	}
	return ParseSeasonFile(data)
}

// ParseSeasonFile decodes a season definition.
//
//	category: outerwear
//	unit_price: "89.00"
//	season:
//	  forecast_horizon_weeks: 12
//	  season_start_date: 2025-09-01
//	  replenishment_strategy: weekly
//	  dc_holdback_pct: 0.45
//	  markdown_checkpoint_week: 8
//	stores:
//	  - {store_id: S001, name: Flagship, weight: 2}
func ParseSeasonFile(data []byte) (*SeasonFile, error) {
	var raw seasonYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse season file: %w", err)
	}
	if strings.TrimSpace(raw.Category) == "" {
		return nil, fmt.Errorf("season file: category is required")
	}

	price := decimal.Zero
	if raw.UnitPrice != "" {
		p, err := decimal.NewFromString(raw.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("season file: unit_price %q: %w", raw.UnitPrice, err)
		}
		if p.IsNegative() {
			return nil, fmt.Errorf("season file: unit_price must not be negative")
		}
		price = p
	}

	start, err := time.Parse("2006-01-02", strings.TrimSpace(raw.Season.SeasonStartDate))
	if err != nil {
		return nil, fmt.Errorf("season file: season_start_date %q: %w", raw.Season.SeasonStartDate, err)
	}
	strategy := models.ReplenishmentStrategy(raw.Season.ReplenishmentStrategy)
	if strategy == "" {
		strategy = models.ReplenishWeekly
	}

	params := models.SeasonParameters{
		ForecastHorizonWeeks:   raw.Season.ForecastHorizonWeeks,
		SeasonStartDate:        start,
		ReplenishmentStrategy:  strategy,
		DCHoldbackPct:          raw.Season.DCHoldbackPct,
		MarkdownCheckpointWeek: raw.Season.MarkdownCheckpointWeek,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("season file: %w", err)
	}
	for _, s := range raw.Stores {
		if s.StoreID == "" || s.Weight <= 0 {
			return nil, fmt.Errorf("season file: store %q needs an id and a positive weight", s.StoreID)
		}
	}

	return &SeasonFile{
		Category:  raw.Category,
		UnitPrice: price,
		Params:    params,
		Stores:    raw.Stores,
	}, nil
}

// LoadStoreProfiles reads the stores section of a season or stores file.
func LoadStoreProfiles(path string) ([]models.StoreProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stores file: %w", err)
	}
	var raw struct {
		Stores []models.StoreProfile `yaml:"stores"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse stores file: %w", err)
	}
	for _, s := range raw.Stores {
		if s.StoreID == "" || s.Weight <= 0 {
			return nil, fmt.Errorf("stores file: store %q needs an id and a positive weight", s.StoreID)
		}
	}
	return raw.Stores, nil
}
