package importmap

import "testing"

func TestResolveExactImportEntry(t *testing.T) {
	im, err := FromJSON("file:///app/", []byte(`{"imports":{"jquery":"https://cdn.example.com/jquery.js"}}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	resolved, err := im.Resolve("jquery", "file:///app/main.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved == nil || string(*resolved) != "https://cdn.example.com/jquery.js" {
		t.Fatalf("Resolve = %v, want https://cdn.example.com/jquery.js", resolved)
	}
}

func TestResolveReturnsNilWhenNoEntryApplies(t *testing.T) {
	im, err := FromJSON("file:///app/", []byte(`{"imports":{"jquery":"https://cdn.example.com/jquery.js"}}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	resolved, err := im.Resolve("./local.ts", "file:///app/main.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != nil {
		t.Errorf("Resolve = %v, want nil for an unmapped specifier", resolved)
	}
}

func TestResolveNullEntryIsAnError(t *testing.T) {
	im, err := FromJSON("file:///app/", []byte(`{"imports":{"blocked":null}}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if _, err := im.Resolve("blocked", "file:///app/main.ts"); err == nil {
		t.Error("Resolve: expected error for a null-mapped entry, got nil")
	}
}

func TestResolvePrefixMatchPicksLongestKey(t *testing.T) {
	im, err := FromJSON("file:///app/", []byte(`{
		"imports": {
			"lib/": "https://cdn.example.com/lib/",
			"lib/special/": "https://cdn.example.com/special-lib/"
		}
	}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	resolved, err := im.Resolve("lib/special/thing.js", "file:///app/main.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "https://cdn.example.com/special-lib/thing.js"
	if resolved == nil || string(*resolved) != want {
		t.Fatalf("Resolve = %v, want %s", resolved, want)
	}
}

func TestResolveScopedEntryOverridesGlobal(t *testing.T) {
	im, err := FromJSON("file:///app/", []byte(`{
		"imports": {"shared": "https://cdn.example.com/shared-v1.js"},
		"scopes": {
			"./legacy/": {"shared": "https://cdn.example.com/shared-v0.js"}
		}
	}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	resolved, err := im.Resolve("shared", "file:///app/legacy/old.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "https://cdn.example.com/shared-v0.js"
	if resolved == nil || string(*resolved) != want {
		t.Fatalf("scoped Resolve = %v, want %s", resolved, want)
	}

	resolved, err = im.Resolve("shared", "file:///app/current/new.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want = "https://cdn.example.com/shared-v1.js"
	if resolved == nil || string(*resolved) != want {
		t.Fatalf("unscoped Resolve = %v, want %s", resolved, want)
	}
}

func TestResolveOnNilMapIsNoOp(t *testing.T) {
	var im *ImportMap
	resolved, err := im.Resolve("jquery", "file:///app/main.ts")
	if err != nil || resolved != nil {
		t.Errorf("nil-receiver Resolve = (%v, %v), want (nil, nil)", resolved, err)
	}
}
