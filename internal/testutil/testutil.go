// Package testutil provides shared test helpers: fixture loading,
// determinism harnesses, and deep-equal assertions (spec §10.5). Grounded on
// libs/testing/fixtures.go + golden.go, kept as plain reflect.DeepEqual /
// field-by-field comparison against in-test fixtures rather than the
// teacher's file-backed golden-snapshot framework, which §10.5 explicitly
// rules out for this codebase.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// LoadFixture reads name from the testdata directory of the calling test
// file's package (testdata/<name>, not libs/testing's own directory — the
// teacher's version anchored to its own source file by mistake).
func LoadFixture(t testing.TB, name string) []byte {
	t.Helper()
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatalf("testutil.LoadFixture: unable to resolve caller path")
	}
	path := filepath.Join(filepath.Dir(file), "testdata", name)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("testutil.LoadFixture: read %s: %v", path, err)
	}
	return raw
}

// AssertDeterministic calls fn twice and fails if the JSON encoding of the
// two results differs, catching accidental non-determinism (map iteration
// order leaking into output, wall-clock reads, unseeded randomness).
func AssertDeterministic(t testing.TB, fn func() any) {
	t.Helper()
	a, b := fn(), fn()

	aJSON, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("testutil.AssertDeterministic: marshal first result: %v", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("testutil.AssertDeterministic: marshal second result: %v", err)
	}
	if string(aJSON) != string(bJSON) {
		t.Errorf("testutil.AssertDeterministic: results differ\nfirst:  %s\nsecond: %s", aJSON, bJSON)
	}
}

// AssertDeepEqual wraps reflect.DeepEqual with a readable JSON diff on
// failure — the comparison primitive spec §10.5 calls for in place of
// snapshot testing.
func AssertDeepEqual(t testing.TB, want, got any) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		wantJSON, _ := json.MarshalIndent(want, "", "  ")
		gotJSON, _ := json.MarshalIndent(got, "", "  ")
		t.Errorf("values differ\nwant: %s\n got: %s", wantJSON, gotJSON)
	}
}

// MustMarshal marshals v to indented JSON or fatals the test. Useful for
// building expected JSON blobs inline without error-handling boilerplate.
func MustMarshal(t testing.TB, v any) []byte {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("testutil.MustMarshal: %v", err)
	}
	return b
}
