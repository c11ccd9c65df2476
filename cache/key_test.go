package cache

import (
	"strings"
	"testing"
)

func TestNewKey_Deterministic(t *testing.T) {
	req := Request{Topic: "hiking", Season: "fall", Audience: "family", Phase: "planning", Query: "best trails"}

	k1 := NewKey(ScopeChat, req, "v1")
	k2 := NewKey(ScopeChat, req, "v1")

	if k1 != k2 {
		t.Error("same request should produce same key")
	}
}

func TestNewKey_NormalizationStable(t *testing.T) {
	k1 := NewKey(ScopeChat, Request{Topic: "Hiking", Season: " fall ", Audience: "Family", Phase: "planning", Query: "best  trails"}, "v1")
	k2 := NewKey(ScopeChat, Request{Topic: "hiking", Season: "fall", Audience: "family", Phase: "planning", Query: "best trails"}, "v1")

	if k1 != k2 {
		t.Error("normalization should make equivalent requests collide on the same key")
	}
}

func TestNewKey_DistinctRequests(t *testing.T) {
	base := Request{Topic: "hiking", Season: "fall", Audience: "family", Phase: "planning", Query: "best trails"}

	variants := []Request{
		{Topic: "camping", Season: "fall", Audience: "family", Phase: "planning", Query: "best trails"},
		{Topic: "hiking", Season: "summer", Audience: "family", Phase: "planning", Query: "best trails"},
		{Topic: "hiking", Season: "fall", Audience: "couples", Phase: "planning", Query: "best trails"},
		{Topic: "hiking", Season: "fall", Audience: "family", Phase: "booking", Query: "best trails"},
		{Topic: "hiking", Season: "fall", Audience: "family", Phase: "planning", Query: "worst trails"},
	}

	baseKey := NewKey(ScopeChat, base, "v1")
	for _, v := range variants {
		if NewKey(ScopeChat, v, "v1") == baseKey {
			t.Errorf("variant %+v should not collide with base", v)
		}
	}
}

func TestNewKey_ScopeAndVersionSeparation(t *testing.T) {
	req := Request{Topic: "hiking", Season: "fall", Audience: "family", Phase: "planning"}

	if NewKey(ScopeChat, req, "v1") == NewKey(ScopeNextQuestions, req, "v1") {
		t.Error("different scopes must have different keys")
	}
	if NewKey(ScopeChat, req, "v1") == NewKey(ScopeChat, req, "v2") {
		t.Error("different knowledge versions must have different keys")
	}
}

func TestNewKey_Format(t *testing.T) {
	k := NewKey(ScopeChat, Request{Topic: "hiking"}, "v1").String()
	if !strings.HasPrefix(k, "pc:chat:v1:") {
		t.Errorf("unexpected key format: %s", k)
	}
}
