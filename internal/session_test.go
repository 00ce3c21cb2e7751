package internal

import (
	"encoding/json"
	"testing"
)

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleTool, "tool"},
		{RoleSystem, "system"},
		{RoleOther("narrator"), "narrator"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("Role.String() = %q, want %q", got, tt.want)
		}
	}
	if RoleUser.IsOther() {
		t.Error("RoleUser.IsOther() = true")
	}
	if !RoleOther("x").IsOther() {
		t.Error("RoleOther.IsOther() = false")
	}
}

func TestRoleJSONRoundTrip(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleAssistant, RoleTool, RoleSystem, RoleOther("narrator")} {
		data, err := json.Marshal(role)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", role, err)
		}
		var back Role
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if back != role {
			t.Errorf("round trip changed role: %v became %v", role, back)
		}
	}
}

func TestObserveTimestamp(t *testing.T) {
	var s Session
	s.ObserveTimestamp(0)
	if s.StartedAt != 0 || s.EndedAt != 0 {
		t.Error("zero timestamps must be ignored")
	}

	s.ObserveTimestamp(1700000005000)
	s.ObserveTimestamp(1700000001000)
	s.ObserveTimestamp(1700000003000)
	if s.StartedAt != 1700000001000 {
		t.Errorf("StartedAt = %d, want earliest", s.StartedAt)
	}
	if s.EndedAt != 1700000005000 {
		t.Errorf("EndedAt = %d, want latest", s.EndedAt)
	}
}

func TestHasRole(t *testing.T) {
	s := &Session{Messages: []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
	}}
	if !s.HasRole(RoleUser) || !s.HasRole(RoleAssistant) {
		t.Error("HasRole() missed present roles")
	}
	if s.HasRole(RoleTool) {
		t.Error("HasRole(RoleTool) = true for session without tool messages")
	}
}
