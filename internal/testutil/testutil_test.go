package testutil

import (
	"strings"
	"testing"
)

func TestLoadFixtureReadsFromCallerTestdata(t *testing.T) {
	got := LoadFixture(t, "sample.txt")
	if strings.TrimSpace(string(got)) != "hello fixture" {
		t.Errorf("LoadFixture = %q, want %q", got, "hello fixture")
	}
}

func TestAssertDeterministicPassesForStableFn(t *testing.T) {
	AssertDeterministic(t, func() any {
		return map[string]int{"a": 1, "b": 2}
	})
}

func TestAssertDeepEqualPassesForEqualValues(t *testing.T) {
	type pair struct{ A, B int }
	AssertDeepEqual(t, pair{1, 2}, pair{1, 2})
}

func TestMustMarshalProducesIndentedJSON(t *testing.T) {
	b := MustMarshal(t, map[string]int{"x": 1})
	if !strings.Contains(string(b), "\"x\": 1") {
		t.Errorf("MustMarshal output = %s, want it to contain indented \"x\": 1", b)
	}
}
