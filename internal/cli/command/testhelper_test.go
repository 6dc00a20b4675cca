package command

import (
	"bytes"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

// result holds the captured streams of one CLI run.
type result struct {
	stdout string
	stderr string
	err    error
}

// store runs commands against one data directory.
type store struct {
	t   *testing.T
	dir string
}

func newStore(t *testing.T) *store {
	t.Helper()
	// Keep the developer's environment out of the tests.
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "LOCKBOX_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
	t.Setenv("LOCKBOX_STORAGE_GC_INTERVAL", "0s")
	return &store{t: t, dir: filepath.Join(t.TempDir(), "data")}
}

// run executes lockbox with --data-dir set. stdin feeds confirmations.
func (s *store) run(stdin string, args ...string) result {
	s.t.Helper()

	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"lockbox", "--data-dir", s.dir}, args...)
	err := app.Run(full)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// ok runs args and fails the test on error.
func (s *store) ok(args ...string) string {
	s.t.Helper()
	r := s.run("", args...)
	if r.err != nil {
		s.t.Fatalf("lockbox %s: %v\nstderr: %s", strings.Join(args, " "), r.err, r.stderr)
	}
	return r.stdout
}

// okJSON runs args with -o json and decodes stdout into dst.
func (s *store) okJSON(dst any, args ...string) {
	s.t.Helper()
	out := s.ok(append([]string{"-o", "json"}, args...)...)
	if err := json.Unmarshal([]byte(out), dst); err != nil {
		s.t.Fatalf("decode %q: %v", out, err)
	}
}

// testContext creates a CLI context with the global flags parsed from args.
func testContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	app := &cli.App{
		Name:  "test",
		Flags: globalFlags(),
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		if err := f.Apply(set); err != nil {
			t.Fatal(err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cli.NewContext(app, set, nil)
}
