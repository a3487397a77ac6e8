package config

import (
	"strings"
	"testing"
	"time"
)

var allVars = []string{
	"DHAN_BASE_URL", "DHAN_ACCESS_TOKEN", "DHAN_CLIENT_ID", "DHAN_TIMEOUT_MS",
	"DHAN_RATE_LIMIT", "ENABLE_TRADING_TOOLS", "MAX_ORDER_QUANTITY", "MAX_INFLIGHT",
	"DHAN_MCP_METRICS_ADDR",
}

// setEnv clears every variable the package reads, then applies vars.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func credentials() map[string]string {
	return map[string]string{"DHAN_ACCESS_TOKEN": "tok", "DHAN_CLIENT_ID": "1000000001"}
}

func TestFromEnv_Defaults(t *testing.T) {
	setEnv(t, credentials())
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://api.dhan.co/v2" || cfg.TimeoutMS != 15000 || cfg.MaxOrderQuantity != 10000 || cfg.MaxInFlight != 32 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TradingEnabled || cfg.RateLimit != 0 || cfg.MetricsAddr != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Timeout() != 15*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Timeout())
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	vars := credentials()
	vars["DHAN_BASE_URL"] = "https://sandbox.dhan.co/v2"
	vars["DHAN_TIMEOUT_MS"] = "2500"
	vars["DHAN_RATE_LIMIT"] = "2.5"
	vars["ENABLE_TRADING_TOOLS"] = "YES"
	vars["MAX_ORDER_QUANTITY"] = "50"
	vars["MAX_INFLIGHT"] = "4"
	vars["DHAN_MCP_METRICS_ADDR"] = "127.0.0.1:9464"
	setEnv(t, vars)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.TradingEnabled || cfg.TimeoutMS != 2500 || cfg.RateLimit != 2.5 || cfg.MaxOrderQuantity != 50 || cfg.MaxInFlight != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BaseURL != "https://sandbox.dhan.co/v2" || cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestFromEnv_Errors(t *testing.T) {
	cases := map[string]struct {
		key, value string
		want       string
	}{
		"missing token":     {"DHAN_ACCESS_TOKEN", "", "DHAN_ACCESS_TOKEN"},
		"missing client id": {"DHAN_CLIENT_ID", "", "DHAN_CLIENT_ID"},
		"bad timeout":       {"DHAN_TIMEOUT_MS", "soon", ""},
		"zero timeout":      {"DHAN_TIMEOUT_MS", "0", "DHAN_TIMEOUT_MS"},
		"bad quantity":      {"MAX_ORDER_QUANTITY", "lots", ""},
		"negative quantity": {"MAX_ORDER_QUANTITY", "-1", "MAX_ORDER_QUANTITY"},
		"bad toggle":        {"ENABLE_TRADING_TOOLS", "maybe", "invalid boolean"},
		"relative url":      {"DHAN_BASE_URL", "api.dhan.co", "DHAN_BASE_URL"},
		"zero inflight":     {"MAX_INFLIGHT", "0", "MAX_INFLIGHT"},
		"negative rate":     {"DHAN_RATE_LIMIT", "-1", "DHAN_RATE_LIMIT"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			vars := credentials()
			vars[tc.key] = tc.value
			setEnv(t, vars)
			_, err := FromEnv()
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestToggle_Decode(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "on": true, "True": true, " yes ": true, "0": false, "off": false, "NO": false, "false": false} {
		var tg Toggle
		if err := tg.Decode(in); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if bool(tg) != want {
			t.Fatalf("%q: got %v want %v", in, tg, want)
		}
	}
	var tg Toggle
	if err := tg.Decode("enabled"); err == nil {
		t.Fatalf("expected error for unknown value")
	}
}
