package cmd

import (
	"strings"
	"testing"
)

func TestShell_BackgroundCartOperations(t *testing.T) {
	env := newCLIEnv(t)
	env.srv.AddUser("Dee", "dee@example.com", "pw12345")

	script := strings.Join([]string{
		"add item-mug",
		"login dee@example.com pw12345",
		"add item-mug 2",
		"add item-cable",
		"wait",
		"count",
		"bogus",
		"logout",
		"quit",
		"count",
	}, "\n") + "\n"

	out, _, err := env.run(t, script, "shell")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}

	for _, want := range []string{
		"Not logged in.",
		"error: " + ErrNotLoggedIn.Error(),
		"[session] logged in as Dee <dee@example.com>",
		"[cart] 0 items",
		"[cart] 3 items, total $26.99",
		"\n3\n",
		`error: unknown command "bogus"`,
		"[cart] cleared",
		"[session] logged out",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "error: "+ErrNotLoggedIn.Error()) != 1 {
		t.Errorf("commands after quit must not run:\n%s", out)
	}
}

func TestShell_Help(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "help\n", "shell")
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if !strings.Contains(out, "add <item-id> [qty]") {
		t.Errorf("help output missing commands:\n%s", out)
	}
}
