package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"holdem-engine/models"
)

// Presets is the HCL file listing table stakes players may open and the
// tables created at startup.
//
//	table "nl10" {
//	  small_blind  = 5
//	  big_blind    = 10
//	  max_players  = 6
//	  turn_timeout = "20s"
//	  open_at_start = true
//	}
type Presets struct {
	Tables []TablePreset `hcl:"table,block"`
}

type TablePreset struct {
	Name        string `hcl:"name,label"`
	MaxPlayers  int    `hcl:"max_players,optional"`
	SmallBlind  int    `hcl:"small_blind"`
	BigBlind    int    `hcl:"big_blind"`
	Ante        int    `hcl:"ante,optional"`
	BuyInMin    int    `hcl:"buy_in_min,optional"`
	BuyInMax    int    `hcl:"buy_in_max,optional"`
	TurnTimeout string `hcl:"turn_timeout,optional"`
	TimeBank    string `hcl:"time_bank,optional"`
	// Hands between time bank top-ups and the amount added each time.
	TimeBankEvery  int    `hcl:"time_bank_every,optional"`
	TimeBankRefill string `hcl:"time_bank_refill,optional"`
	NextHandDelay  string `hcl:"next_hand_delay,optional"`
	AutoStart      *bool  `hcl:"auto_start,optional"`
	MaxTimeouts    int    `hcl:"max_timeouts,optional"`
	OpenAtStart    bool   `hcl:"open_at_start,optional"`
}

func DefaultPresets() *Presets {
	return &Presets{Tables: []TablePreset{
		{Name: "micro", MaxPlayers: 6, SmallBlind: 1, BigBlind: 2, OpenAtStart: true},
		{Name: "nl10", MaxPlayers: 6, SmallBlind: 5, BigBlind: 10},
		{Name: "nl100-full-ring", MaxPlayers: 9, SmallBlind: 50, BigBlind: 100},
	}}
}

// LoadPresets reads presets from an HCL file. A missing file yields the
// defaults.
func LoadPresets(filename string) (*Presets, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return DefaultPresets(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var presets Presets
	diags = gohcl.DecodeBody(file.Body, nil, &presets)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	if err := presets.Validate(); err != nil {
		return nil, err
	}
	return &presets, nil
}

func (p *Presets) Validate() error {
	seen := make(map[string]bool, len(p.Tables))
	for _, t := range p.Tables {
		if seen[t.Name] {
			return fmt.Errorf("duplicate table preset %q", t.Name)
		}
		seen[t.Name] = true
		if _, err := t.TableConfig(); err != nil {
			return fmt.Errorf("table preset %q: %w", t.Name, err)
		}
	}
	return nil
}

func (p *Presets) Find(name string) (TablePreset, bool) {
	for _, t := range p.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TablePreset{}, false
}

// TableConfig converts the preset into an engine table config. Zero values
// are left for the engine to default, except the timers which default here.
func (t TablePreset) TableConfig() (models.TableConfig, error) {
	cfg := models.TableConfig{
		SmallBlind:             t.SmallBlind,
		BigBlind:               t.BigBlind,
		Ante:                   t.Ante,
		MinBuyIn:               t.BuyInMin,
		MaxBuyIn:               t.BuyInMax,
		MaxSeats:               t.MaxPlayers,
		TimeBankReplenishHands: t.TimeBankEvery,
		AutoStart:              true,
		MaxConsecutiveTimeouts: t.MaxTimeouts,
	}
	if t.AutoStart != nil {
		cfg.AutoStart = *t.AutoStart
	}
	if cfg.MinBuyIn == 0 {
		cfg.MinBuyIn = cfg.BigBlind * 50
	}
	if cfg.MaxBuyIn == 0 {
		cfg.MaxBuyIn = cfg.BigBlind * 200
	}

	durations := []struct {
		field string
		value string
		def   time.Duration
		dst   *time.Duration
	}{
		{"turn_timeout", t.TurnTimeout, 30 * time.Second, &cfg.TurnTimeout},
		{"time_bank", t.TimeBank, 60 * time.Second, &cfg.TimeBank},
		{"time_bank_refill", t.TimeBankRefill, 0, &cfg.TimeBankReplenish},
		{"next_hand_delay", t.NextHandDelay, 3 * time.Second, &cfg.NextHandDelay},
	}
	for _, d := range durations {
		if d.value == "" {
			*d.dst = d.def
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.field, err)
		}
		*d.dst = v
	}

	if cfg.SmallBlind <= 0 || cfg.BigBlind < cfg.SmallBlind {
		return cfg, fmt.Errorf("invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}
	if cfg.MaxSeats != 0 && (cfg.MaxSeats < 2 || cfg.MaxSeats > 10) {
		return cfg, fmt.Errorf("max_players must be between 2 and 10, got %d", cfg.MaxSeats)
	}
	if cfg.MaxBuyIn < cfg.MinBuyIn {
		return cfg, fmt.Errorf("buy_in_max %d below buy_in_min %d", cfg.MaxBuyIn, cfg.MinBuyIn)
	}
	return cfg, nil
}
