package bashkit

import (
	"context"
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("BASHKIT_CONFIG_TEST", "from-host")
	doc := []byte(`
profile: relaxed
limits:
  max_commands: 7
env:
  GREETING: hi
  FROM_HOST: "${BASHKIT_CONFIG_TEST}"
  WITH_DEFAULT: "${BASHKIT_CONFIG_UNSET:-fallback}"
identity:
  user: tester
  host: testhost
`)
	builder, err := LoadConfig(doc)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatal(err)
	}
	if engine.limits.MaxCommands != 7 {
		t.Fatalf("limits override not applied: %d", engine.limits.MaxCommands)
	}

	res := engine.Execute(context.Background(), `echo "$GREETING $FROM_HOST $WITH_DEFAULT"; whoami`)
	if want := "hi from-host fallback\ntester\n"; res.Stdout != want {
		t.Fatalf("got %q (stderr %q)", res.Stdout, res.Stderr)
	}
}

func TestLoadConfigUnknownProfile(t *testing.T) {
	if _, err := LoadConfig([]byte("profile: reckless")); err == nil {
		t.Fatal("wanted an error for an unknown profile")
	}
}
