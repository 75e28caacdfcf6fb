package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentRegistration(t *testing.T) {
	reg := Registration{Name: "ttrpg-api", Host: "10.0.0.5", Port: 8080, Tags: []string{"http"}, Version: "1.2.3"}
	ar := reg.agentRegistration()

	assert.Equal(t, "ttrpg-api-10.0.0.5-8080", ar.ID)
	assert.Equal(t, "10.0.0.5", ar.Address)
	assert.Equal(t, 8080, ar.Port)
	assert.Equal(t, "1.2.3", ar.Meta["version"])
	assert.Equal(t, "http://10.0.0.5:8080/health", ar.Check.HTTP)
	assert.Equal(t, "10s", ar.Check.Interval)
	assert.Equal(t, "1m0s", ar.Check.DeregisterCriticalServiceAfter)
}

func TestAdvertiseHostPrefersExplicitValue(t *testing.T) {
	assert.Equal(t, "api.internal", AdvertiseHost("api.internal"))
	assert.NotEmpty(t, AdvertiseHost(""))
}
