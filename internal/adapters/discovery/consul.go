// Package discovery registers the API with a Consul agent.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"
)

type Registration struct {
	Name    string
	Host    string
	Port    int
	Tags    []string
	Version string
}

// ID is unique per host and port so several replicas can share one agent.
func (r Registration) ID() string {
	return fmt.Sprintf("%s-%s-%d", r.Name, r.Host, r.Port)
}

func (r Registration) agentRegistration() *api.AgentServiceRegistration {
	return &api.AgentServiceRegistration{
		ID:      r.ID(),
		Name:    r.Name,
		Tags:    r.Tags,
		Address: r.Host,
		Port:    r.Port,
		Meta:    map[string]string{"version": r.Version},
		Check: &api.AgentServiceCheck{
			HTTP:                           "http://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) + "/health",
			Interval:                       (10 * time.Second).String(),
			Timeout:                        (3 * time.Second).String(),
			DeregisterCriticalServiceAfter: time.Minute.String(),
		},
	}
}

type Registry struct {
	client *api.Client
}

func NewRegistry(addr string) (*Registry, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return &Registry{client: client}, nil
}

// Register announces the service and returns a function that withdraws it.
func (r *Registry) Register(reg Registration) (func() error, error) {
	if err := r.client.Agent().ServiceRegister(reg.agentRegistration()); err != nil {
		return nil, fmt.Errorf("consul register %s: %w", reg.Name, err)
	}
	id := reg.ID()
	return func() error {
		if err := r.client.Agent().ServiceDeregister(id); err != nil {
			return fmt.Errorf("consul deregister %s: %w", id, err)
		}
		return nil
	}, nil
}

// AdvertiseHost returns host, or the machine hostname when host is empty.
func AdvertiseHost(host string) string {
	if host != "" {
		return host
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "localhost"
}
