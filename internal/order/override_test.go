package order

import (
	"testing"

	"github.com/cryptoport/bridge/internal/schema"
)

func TestApplyOverrideProjectsStatus(t *testing.T) {
	original := completedOrder()
	original.CurrentStatus = schema.StatusExchanging
	original.LastSnapshot.Status = schema.RemoteStatusExchange

	projected := ApplyOverride(original, schema.StatusEmergency)
	if projected.CurrentStatus != schema.StatusEmergency {
		t.Fatalf("projected status = %q", projected.CurrentStatus)
	}
	if projected.LastSnapshot.Status != schema.RemoteStatusEmergency {
		t.Fatalf("projected snapshot status = %q", projected.LastSnapshot.Status)
	}

	// The source order and its snapshot are untouched.
	if original.CurrentStatus != schema.StatusExchanging {
		t.Fatalf("original status mutated: %q", original.CurrentStatus)
	}
	if original.LastSnapshot.Status != schema.RemoteStatusExchange {
		t.Fatalf("original snapshot mutated: %q", original.LastSnapshot.Status)
	}
}

func TestApplyOverrideWithoutSnapshot(t *testing.T) {
	original := completedOrder()
	original.LastSnapshot = nil

	projected := ApplyOverride(original, schema.StatusCompleted)
	if projected.LastSnapshot == nil {
		t.Fatalf("projection should synthesise a snapshot")
	}
	if projected.LastSnapshot.Status != schema.RemoteStatusDone {
		t.Fatalf("snapshot status = %q", projected.LastSnapshot.Status)
	}
}

func TestApplyOverrideNilOrder(t *testing.T) {
	if ApplyOverride(nil, schema.StatusCompleted) != nil {
		t.Fatalf("nil order must project to nil")
	}
}
