package execution

import "testing"

func TestResolveSubstitutesKnownVariables(t *testing.T) {
	ec := NewContext(nil)
	ec.AddExtracted(map[string]string{"userId": "42"})
	got := ec.Resolve("/users/{{userId}}/orders")
	if got != "/users/42/orders" {
		t.Fatalf("Resolve()=%q", got)
	}
}

func TestResolveLeavesUnknownPlaceholdersVerbatim(t *testing.T) {
	ec := NewContext(nil)
	got := ec.Resolve("/users/{{userId}}")
	if got != "/users/{{userId}}" {
		t.Fatalf("Resolve()=%q, want placeholder left verbatim", got)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ec := NewContext(map[string]string{"host": "api.local"})
	ec.AddExtracted(map[string]string{"token": "abc"})
	template := "https://{{host}}/v1?t={{token}}&missing={{nope}}"
	first := ec.Resolve(template)
	second := ec.Resolve(template)
	if first != second {
		t.Fatalf("Resolve() not idempotent: %q vs %q", first, second)
	}
}

func TestResolveMultiplePlaceholders(t *testing.T) {
	ec := NewContext(nil)
	ec.AddExtracted(map[string]string{"a": "1", "b": "2"})
	got := ec.Resolve("{{a}}-{{b}}-{{a}}")
	if got != "1-2-1" {
		t.Fatalf("Resolve()=%q", got)
	}
}

func TestResolveUnterminatedPlaceholder(t *testing.T) {
	ec := NewContext(nil)
	got := ec.Resolve("/users/{{userId")
	if got != "/users/{{userId" {
		t.Fatalf("Resolve()=%q, want input unchanged", got)
	}
}

func TestAddExtractedLastWriterWins(t *testing.T) {
	ec := NewContext(nil)
	ec.AddExtracted(map[string]string{"id": "first"})
	ec.AddExtracted(map[string]string{"id": "second"})
	if got, _ := ec.Lookup("id"); got != "second" {
		t.Fatalf("Lookup(id)=%q, want second", got)
	}
}

func TestExtractedShadowsEnvironment(t *testing.T) {
	ec := NewContext(map[string]string{"region": "eu"})
	if got, _ := ec.Lookup("region"); got != "eu" {
		t.Fatalf("Lookup(region)=%q, want eu", got)
	}
	ec.AddExtracted(map[string]string{"region": "us"})
	if got, _ := ec.Lookup("region"); got != "us" {
		t.Fatalf("Lookup(region)=%q, want us", got)
	}
}
