package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/engram/model"
)

func TestScope_Normalize_FillsDefaultTenant(t *testing.T) {
	s := model.Scope{UserID: "u1"}.Normalize()
	assert.Equal(t, "default", s.TenantID)
}

func TestScope_Normalize_LeavesExplicitTenantAlone(t *testing.T) {
	s := model.Scope{TenantID: "acme", UserID: "u1"}.Normalize()
	assert.Equal(t, "acme", s.TenantID)
}

func TestScope_LTMKey_DropsSessionAndRun(t *testing.T) {
	s := model.Scope{TenantID: "acme", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
	assert.Equal(t, model.LTMKey{TenantID: "acme", UserID: "u1", AgentID: "a1"}, s.LTMKey())
}

func TestScope_SessionKey_DropsRun(t *testing.T) {
	s := model.Scope{TenantID: "acme", UserID: "u1", AgentID: "a1", SessionID: "s1", RunID: "r1"}
	assert.Equal(t, model.SessionKey{TenantID: "acme", UserID: "u1", AgentID: "a1", SessionID: "s1"}, s.SessionKey())
}
