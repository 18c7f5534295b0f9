package config

import (
	"testing"
)

func TestLoadStrategy_Defaults(t *testing.T) {
	s := LoadStrategy()

	if !s.InstitutionalEnabled {
		t.Error("institutional engine must default to enabled")
	}
	if s.SweepBufferPips != 0.5 || s.MinGapPips != 2.0 {
		t.Errorf("unexpected pip defaults: sweep=%v gap=%v", s.SweepBufferPips, s.MinGapPips)
	}
	if s.MaxTradesPerSession != 2 {
		t.Errorf("expected 2 trades per session default, got %d", s.MaxTradesPerSession)
	}
	if s.Session.LondonStart != 7*60 || s.Session.NYEnd != 21*60 {
		t.Errorf("unexpected session defaults: %+v", s.Session)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("default strategy must validate: %v", err)
	}
}

func TestLoadStrategy_EnvOverrides(t *testing.T) {
	t.Setenv("SWEEP_BUFFER_PIPS", "1.5")
	t.Setenv("MAX_TRADES_PER_SESSION", "5")
	t.Setenv("INSTITUTIONAL_ENABLED", "false")

	s := LoadStrategy()
	if s.SweepBufferPips != 1.5 {
		t.Errorf("expected sweep buffer 1.5, got %v", s.SweepBufferPips)
	}
	if s.MaxTradesPerSession != 5 {
		t.Errorf("expected 5 trades per session, got %d", s.MaxTradesPerSession)
	}
	if s.InstitutionalEnabled {
		t.Error("expected institutional engine disabled")
	}
}

func TestLoadStrategy_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("MAX_TRADES_PER_SESSION", "not-a-number")
	t.Setenv("RISK_REWARD", "two")

	s := LoadStrategy()
	if s.MaxTradesPerSession != 2 {
		t.Errorf("invalid int must fall back to default, got %d", s.MaxTradesPerSession)
	}
	if s.RiskReward != 2.0 {
		t.Errorf("invalid float must fall back to default, got %v", s.RiskReward)
	}
}

func TestStrategy_Validate(t *testing.T) {
	base := LoadStrategy()

	cases := []struct {
		name   string
		mutate func(*Strategy)
	}{
		{"zero fvg wait", func(s *Strategy) { s.WaitFVGMinutes = 0 }},
		{"negative mitigation wait", func(s *Strategy) { s.WaitMitigationMinutes = -1 }},
		{"zero entry wait", func(s *Strategy) { s.WaitEntryMinutes = 0 }},
		{"zero cooldown", func(s *Strategy) { s.CooldownMinutes = 0 }},
		{"zero lock timeout", func(s *Strategy) { s.InFlightTimeoutSec = 0 }},
		{"zero session budget", func(s *Strategy) { s.MaxTradesPerSession = 0 }},
		{"negative sweep buffer", func(s *Strategy) { s.SweepBufferPips = -0.1 }},
		{"zero order size", func(s *Strategy) { s.OrderSize = 0 }},
		{"zero risk reward", func(s *Strategy) { s.RiskReward = 0 }},
		{"zero swing wing", func(s *Strategy) { s.SwingWing = 0 }},
		{"overlapping sessions", func(s *Strategy) { s.Session.LondonEnd = 13 * 60 }},
	}

	for _, tc := range cases {
		s := base
		tc.mutate(&s)
		if err := s.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestParseInstruments(t *testing.T) {
	out := parseInstruments("EURUSD:0.0001, gbpusd:0.0001 ,XAUUSD:0.1")

	if len(out) != 3 {
		t.Fatalf("expected 3 instruments, got %d", len(out))
	}
	if out["GBPUSD"].Symbol != "GBPUSD" {
		t.Error("symbols must be upper-cased and trimmed")
	}
	if out["XAUUSD"].PipSize != 0.1 {
		t.Errorf("expected XAUUSD pip 0.1, got %v", out["XAUUSD"].PipSize)
	}
	if out["EURUSD"].LotSize != 100_000 {
		t.Errorf("expected standard lot size, got %v", out["EURUSD"].LotSize)
	}
}

func TestParseInstruments_DefaultsAndJunk(t *testing.T) {
	out := parseInstruments("EURUSD,USDJPY:bogus,,  ")

	if out["EURUSD"].PipSize != 0.0001 {
		t.Errorf("missing pip size must default to 0.0001, got %v", out["EURUSD"].PipSize)
	}
	if out["USDJPY"].PipSize != 0.0001 {
		t.Errorf("invalid pip size must default, got %v", out["USDJPY"].PipSize)
	}
	if len(out) != 2 {
		t.Errorf("empty entries must be skipped, got %d", len(out))
	}
}
