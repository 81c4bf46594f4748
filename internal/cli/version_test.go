package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionSkipsConfig(t *testing.T) {
	t.Setenv("DISCORD_WEBHOOK_URL", "")
	t.Setenv("LIQUIDITY_ALERTING_WEBHOOK_URL", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version 不应依赖配置: %v", err)
	}
	if !strings.Contains(out.String(), "version: dev") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
