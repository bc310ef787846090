package execution

import "testing"

func TestExtractValuesScalars(t *testing.T) {
	body := []byte(`{"id": 42, "name": "ada", "active": true, "score": 3.5}`)
	got := ExtractValues(body, map[string]string{
		"userId": "id",
		"name":   "name",
		"active": "active",
		"score":  "score",
	})
	want := map[string]string{"userId": "42", "name": "ada", "active": "true", "score": "3.5"}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("ExtractValues()[%q]=%q, want %q", k, got[k], v)
		}
	}
}

func TestExtractValuesIntegerStaysIntegerText(t *testing.T) {
	got := ExtractValues([]byte(`{"id": 9007199254740993}`), map[string]string{"id": "id"})
	if got["id"] != "9007199254740993" {
		t.Fatalf("ExtractValues()[id]=%q, want wire text preserved", got["id"])
	}
}

func TestExtractValuesNestedAndIndexed(t *testing.T) {
	body := []byte(`{"data": {"items": [{"name": "first"}, {"name": "second"}]}}`)
	got := ExtractValues(body, map[string]string{"second": "data.items[1].name"})
	if got["second"] != "second" {
		t.Fatalf("ExtractValues()=%v", got)
	}
}

func TestExtractValuesDollarPrefixAccepted(t *testing.T) {
	got := ExtractValues([]byte(`{"id": "x"}`), map[string]string{"id": "$.id"})
	if got["id"] != "x" {
		t.Fatalf("ExtractValues()=%v", got)
	}
}

func TestExtractValuesMissingPathProducesNoEntry(t *testing.T) {
	got := ExtractValues([]byte(`{"id": 1}`), map[string]string{"token": "auth.token", "id": "id"})
	if _, ok := got["token"]; ok {
		t.Fatalf("expected no entry for missing path")
	}
	if got["id"] != "1" {
		t.Fatalf("expected independent paths to still extract, got %v", got)
	}
}

func TestExtractValuesNonScalarIsUnresolved(t *testing.T) {
	body := []byte(`{"obj": {"a": 1}, "arr": [1, 2], "nul": null}`)
	got := ExtractValues(body, map[string]string{"o": "obj", "a": "arr", "n": "nul"})
	if len(got) != 0 {
		t.Fatalf("expected non-scalar values to be unresolved, got %v", got)
	}
}

func TestExtractValuesNonJSONBody(t *testing.T) {
	got := ExtractValues([]byte("plain text"), map[string]string{"id": "id"})
	if len(got) != 0 {
		t.Fatalf("expected nothing from non-JSON body, got %v", got)
	}
}

func TestExtractValuesOutOfBoundsIndex(t *testing.T) {
	got := ExtractValues([]byte(`{"items": [1]}`), map[string]string{"v": "items[5]"})
	if len(got) != 0 {
		t.Fatalf("expected out-of-bounds index to be unresolved, got %v", got)
	}
}
