package config

import (
	"testing"
	"time"

	"refguard/internal/platform/testkit"
)

func fakeEnv(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestMayAccessors(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &env, fakeEnv(map[string]string{
		"CHECK_WORKERS":    "8",
		"CHECK_DB_TIMEOUT": "15s",
		"CHECK_BADINT":     "eight",
		"CHECK_LIST":       "a, b ,,c",
	}))

	c := New().Prefix("CHECK_")
	if got := c.MayInt("WORKERS", 4); got != 8 {
		t.Fatalf("MayInt = %d", got)
	}
	if got := c.MayInt("BADINT", 4); got != 4 {
		t.Fatalf("invalid int should fall back, got %d", got)
	}
	if got := c.MayDuration("DB_TIMEOUT", time.Second); got != 15*time.Second {
		t.Fatalf("MayDuration = %v", got)
	}
	if got := c.MayString("MISSING", "def"); got != "def" {
		t.Fatalf("MayString = %q", got)
	}
	csv := c.MayCSV("LIST", nil)
	if len(csv) != 3 || csv[0] != "a" || csv[1] != "b" || csv[2] != "c" {
		t.Fatalf("MayCSV = %v", csv)
	}
}

func TestMustStringPanicsWhenMissing(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &env, fakeEnv(nil))

	c := New().Prefix("CHECK_")
	testkit.MustPanic(t, func() { c.MustString("REQUIRED") })
}
