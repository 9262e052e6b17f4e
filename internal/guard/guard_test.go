package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		hasSession bool
		want       Decision
	}{
		{"dashboard without session", RouteDashboard, false, Decision{Redirect: RouteLogin}},
		{"login with session", RouteLogin, true, Decision{Redirect: RouteDashboard}},
		{"register with session", RouteRegister, true, Decision{Redirect: RouteDashboard}},
		{"login without session", RouteLogin, false, Decision{Allow: true}},
		{"register without session", RouteRegister, false, Decision{Allow: true}},
		{"dashboard with session", RouteDashboard, true, Decision{Allow: true}},
		{"unknown route without session", "/photos/abc", false, Decision{Redirect: RouteLogin}},
		{"unknown route with session", "/photos/abc", true, Decision{Allow: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.path, tt.hasSession))
		})
	}
}

func TestNavigate(t *testing.T) {
	tests := []struct {
		path       string
		hasSession bool
		want       string
	}{
		{RouteRoot, true, RouteDashboard},
		{RouteRoot, false, RouteLogin},
		{RouteDashboard, false, RouteLogin},
		{RouteLogin, true, RouteDashboard},
		{RouteRegister, false, RouteRegister},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Navigate(tt.path, tt.hasSession), "navigate %s (session=%v)", tt.path, tt.hasSession)
	}
}

func TestIsPublic(t *testing.T) {
	assert.True(t, IsPublic("/login"))
	assert.True(t, IsPublic("/register"))
	assert.False(t, IsPublic("/"))
	assert.False(t, IsPublic("/login/"))
}
