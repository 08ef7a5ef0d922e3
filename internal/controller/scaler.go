// Package controller implements the Elastic Worker Controller: one instance
// per (tenant, machine_group), reconciling replica count against queue depth.
package controller

import "context"

// DeploymentScaler is the injected capability over the target deployment
// platform; a real implementation talks to Kubernetes, Nomad, or similar.
type DeploymentScaler interface {
	GetReplicas(ctx context.Context, name, namespace string) (int, error)
	SetReplicas(ctx context.Context, name, namespace string, n int) error
}

// FakeScaler is an in-memory DeploymentScaler for tests and local runs.
type FakeScaler struct {
	replicas map[string]int
}

func NewFakeScaler(initial int) *FakeScaler {
	return &FakeScaler{replicas: map[string]int{"": initial}}
}

func (f *FakeScaler) key(name, namespace string) string { return namespace + "/" + name }

func (f *FakeScaler) GetReplicas(ctx context.Context, name, namespace string) (int, error) {
	if f.replicas == nil {
		f.replicas = map[string]int{}
	}
	n, ok := f.replicas[f.key(name, namespace)]
	if !ok {
		n = f.replicas[""]
	}
	return n, nil
}

func (f *FakeScaler) SetReplicas(ctx context.Context, name, namespace string, n int) error {
	if f.replicas == nil {
		f.replicas = map[string]int{}
	}
	f.replicas[f.key(name, namespace)] = n
	return nil
}
