package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "otp_cleanup"}
	jobB := &stubJob{name: "outbox_retention"}
	registry, err := NewRegistry(jobA, jobB)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order: %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidJobs(t *testing.T) {
	if _, err := NewRegistry(&stubJob{name: "otp_cleanup"}, &stubJob{name: "otp_cleanup"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if _, err := NewRegistry(&stubJob{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected nil job error")
	}
}
