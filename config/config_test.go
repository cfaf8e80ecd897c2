package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	data := `instruments:
  - exchange: NSE
    symbol: SBIN
    modes: [ltp, depth]
    indicators:
      - {type: EMA, period: 20}
      - {type: RSI, period: 14}
  - exchange: BSE
    symbol: INFY
    modes: [quote]
    indicators:
      - {type: SMA, period: 50}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(p.Instruments))
	}
	first := p.Instruments[0]
	if first.Exchange != "NSE" || first.Symbol != "SBIN" {
		t.Errorf("first instrument: %+v", first)
	}
	if len(first.Indicators) != 2 || first.Indicators[0].Type != "EMA" || first.Indicators[0].Period != 20 {
		t.Errorf("first indicators: %+v", first.Indicators)
	}
}

func TestLoadProfile_Invalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("instruments: []\n"), 0o644)
	if _, err := LoadProfile(empty); err == nil {
		t.Error("empty profile should fail")
	}

	noSym := filepath.Join(dir, "nosym.yaml")
	os.WriteFile(noSym, []byte("instruments:\n  - exchange: NSE\n"), 0o644)
	if _, err := LoadProfile(noSym); err == nil {
		t.Error("instrument without symbol should fail")
	}

	if _, err := LoadProfile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("ENGINE_TEST_INT", "32")
	if got := getEnvInt("ENGINE_TEST_INT", 7); got != 32 {
		t.Errorf("got %d, want 32", got)
	}
	t.Setenv("ENGINE_TEST_INT", "-1")
	if got := getEnvInt("ENGINE_TEST_INT", 7); got != 7 {
		t.Errorf("invalid value should fall back: got %d", got)
	}
	if got := getEnvInt("ENGINE_TEST_UNSET", 7); got != 7 {
		t.Errorf("unset should fall back: got %d", got)
	}
}
