package models

import (
	"github.com/vulcan-ci/vulcan/internal/domain"
)

// ChainToStorage converts a domain chain to its storage row.
func ChainToStorage(c *domain.Chain) *ChainModel {
	return &ChainModel{
		ID:             c.ID,
		TenantID:       c.TenantID,
		Status:         string(c.Status),
		Attempt:        c.Attempt,
		SourcePath:     c.Provenance.SourcePath,
		RepositoryURL:  c.Provenance.RepositoryURL,
		CommitSHA:      c.Provenance.CommitSHA,
		Branch:         c.Provenance.Branch,
		TriggerKind:    string(c.Provenance.TriggerKind),
		TriggerRef:     c.Provenance.TriggerRef,
		PRNumber:       c.Provenance.PRNumber,
		DefaultMachine: c.DefaultMachine,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		StartedAt:      c.StartedAt,
		CompletedAt:    c.CompletedAt,
	}
}

// ChainFromStorage converts a storage row back to the domain type.
func ChainFromStorage(m *ChainModel) *domain.Chain {
	return &domain.Chain{
		ID:       m.ID,
		TenantID: m.TenantID,
		Status:   domain.ChainStatus(m.Status),
		Attempt:  m.Attempt,
		Provenance: domain.Provenance{
			SourcePath:    m.SourcePath,
			RepositoryURL: m.RepositoryURL,
			CommitSHA:     m.CommitSHA,
			Branch:        m.Branch,
			TriggerKind:   domain.TriggerKind(m.TriggerKind),
			TriggerRef:    m.TriggerRef,
			PRNumber:      m.PRNumber,
		},
		DefaultMachine: m.DefaultMachine,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}

// FragmentToStorage converts a domain fragment to its storage row.
func FragmentToStorage(f *domain.Fragment) *FragmentModel {
	return &FragmentModel{
		ID:               f.ID,
		ChainID:          f.ChainID,
		ParentID:         f.ParentID,
		Sequence:         f.Sequence,
		Kind:             string(f.Kind),
		Script:           f.Script,
		MachineOverride:  f.MachineOverride,
		IsParallel:       f.IsParallel,
		Condition:        f.Condition,
		SourceURL:        f.SourceURL,
		Status:           string(f.Status),
		AssignedWorkerID: f.AssignedWorkerID,
		StartedAt:        f.StartedAt,
		CompletedAt:      f.CompletedAt,
		ExitCode:         f.ExitCode,
		ErrorMessage:     f.ErrorMessage,
		StdoutTail:       f.StdoutTail,
		StderrTail:       f.StderrTail,
		Attempt:          f.Attempt,
	}
}

// FragmentFromStorage converts a storage row back to the domain type.
func FragmentFromStorage(m *FragmentModel) *domain.Fragment {
	return &domain.Fragment{
		ID:               m.ID,
		ChainID:          m.ChainID,
		ParentID:         m.ParentID,
		Sequence:         m.Sequence,
		Kind:             domain.FragmentKind(m.Kind),
		Script:           m.Script,
		MachineOverride:  m.MachineOverride,
		IsParallel:       m.IsParallel,
		Condition:        m.Condition,
		SourceURL:        m.SourceURL,
		Status:           domain.FragmentStatus(m.Status),
		AssignedWorkerID: m.AssignedWorkerID,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		ExitCode:         m.ExitCode,
		ErrorMessage:     m.ErrorMessage,
		StdoutTail:       m.StdoutTail,
		StderrTail:       m.StderrTail,
		Attempt:          m.Attempt,
	}
}

// WorkerToStorage converts a domain worker to its storage row.
func WorkerToStorage(w *domain.Worker) *WorkerModel {
	return &WorkerModel{
		ID:                w.ID,
		TenantID:          w.TenantID,
		MachineGroup:      w.MachineGroup,
		Status:            string(w.Status),
		LastHeartbeatAt:   w.LastHeartbeatAt,
		CurrentFragmentID: w.CurrentFragmentID,
	}
}

// WorkerFromStorage converts a storage row back to the domain type.
func WorkerFromStorage(m *WorkerModel) *domain.Worker {
	return &domain.Worker{
		ID:                m.ID,
		TenantID:          m.TenantID,
		MachineGroup:      m.MachineGroup,
		Status:            domain.WorkerStatus(m.Status),
		LastHeartbeatAt:   m.LastHeartbeatAt,
		CurrentFragmentID: m.CurrentFragmentID,
	}
}
