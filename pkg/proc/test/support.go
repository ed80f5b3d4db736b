// Package test builds the C fixtures used by the tests that drive a real
// process.
package test

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// Fixture is a test binary.
type Fixture struct {
	// Name is the short name of the fixture.
	Name string
	// Path is the absolute path to the test binary.
	Path string
	// Source is the absolute path of the test binary source.
	Source string
}

var (
	fixtures   = make(map[string]Fixture)
	fixturesMu sync.Mutex
)

// FindFixturesDir walks up from the working directory looking for the
// _fixtures directory.
func FindFixturesDir() string {
	parent := ".."
	fixturesDir := "_fixtures"
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(fixturesDir); err == nil {
			break
		}
		fixturesDir = filepath.Join(parent, fixturesDir)
	}
	return fixturesDir
}

// MustSupportPtrace skips the test when the host cannot run the native
// backend.
func MustSupportPtrace(t testing.TB) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("native backend not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

func compiler() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "cc"
}

// BuildFixture compiles _fixtures/<name>.c without optimizations. The test
// is skipped if no C compiler is available.
func BuildFixture(t testing.TB, name string) Fixture {
	t.Helper()
	return buildFixture(t, name, name, false)
}

// BuildPIEFixture compiles _fixtures/<name>.c as a position independent
// executable. The test is skipped if the toolchain cannot link one.
func BuildPIEFixture(t testing.TB, name string) Fixture {
	t.Helper()
	return buildFixture(t, name, name+".pie", true)
}

func buildFixture(t testing.TB, name, key string, pie bool) Fixture {
	t.Helper()
	MustSupportPtrace(t)

	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	if f, ok := fixtures[key]; ok {
		return f
	}

	cc, err := exec.LookPath(compiler())
	if err != nil {
		t.Skipf("no C compiler: %v", err)
	}

	source, err := filepath.Abs(filepath.Join(FindFixturesDir(), name+".c"))
	if err != nil {
		t.Fatal(err)
	}

	// Make a (good enough) random temporary file name
	r := make([]byte, 4)
	rand.Read(r)
	tmpfile := filepath.Join(os.TempDir(), fmt.Sprintf("%s.%s", key, hex.EncodeToString(r)))

	var out []byte
	if pie {
		out, err = exec.Command(cc, "-O0", "-fno-inline", "-fPIE", "-pie", "-o", tmpfile, source).CombinedOutput()
		if err != nil {
			t.Skipf("cannot build position independent executables: %v\n%s", err, out)
		}
	} else {
		out, err = exec.Command(cc, "-O0", "-fno-inline", "-no-pie", "-o", tmpfile, source).CombinedOutput()
		if err != nil {
			// some toolchains do not know -no-pie, the debugger relocates PIE
			// symbols anyway
			out, err = exec.Command(cc, "-O0", "-fno-inline", "-o", tmpfile, source).CombinedOutput()
		}
	}
	if err != nil {
		t.Fatalf("error compiling %s: %v\n%s", source, err, out)
	}

	fixtures[key] = Fixture{Name: name, Path: tmpfile, Source: source}
	return fixtures[key]
}

// BuildStrippedFixture compiles _fixtures/<name>.c and strips its symbol
// table.
func BuildStrippedFixture(t testing.TB, name string) Fixture {
	t.Helper()
	f := BuildFixture(t, name)
	stripped := f.Path + ".stripped"
	if _, err := os.Stat(stripped); err == nil {
		return Fixture{Name: name, Path: stripped, Source: f.Source}
	}
	strip, err := exec.LookPath("strip")
	if err != nil {
		t.Skipf("no strip: %v", err)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stripped, data, 0o755); err != nil {
		t.Fatal(err)
	}
	if out, err := exec.Command(strip, "-s", stripped).CombinedOutput(); err != nil {
		t.Fatalf("error stripping %s: %v\n%s", stripped, err, out)
	}
	return Fixture{Name: name, Path: stripped, Source: f.Source}
}

// RunTestsWithFixtures runs the tests and deletes the compiled fixtures
// before exiting.
func RunTestsWithFixtures(m *testing.M) int {
	status := m.Run()

	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	for _, f := range fixtures {
		os.Remove(f.Path)
		os.Remove(f.Path + ".stripped")
	}
	return status
}
