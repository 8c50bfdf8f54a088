package store

import (
	"testing"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

func TestDeadlineMember(t *testing.T) {
	t.Parallel()

	d := Deadline{TicketID: 42, HolderID: "holder-9", Quantity: 3}
	if got := d.member(); got != "42:holder-9" {
		t.Fatalf("expected member 42:holder-9, got %q", got)
	}

	// The member identifies the (ticket, holder) pair only, so an entry
	// re-added with a different quantity or seat set maps to the same
	// member and one ZREM is enough to remove it.
	replaced := Deadline{TicketID: 42, HolderID: "holder-9", Quantity: 7, Seats: []model.Seat{{Row: "A", Number: 1}}}
	if replaced.member() != d.member() {
		t.Fatalf("replaced hold must keep the same member, got %q and %q", d.member(), replaced.member())
	}
	if got := pairMember(42, "holder-9"); got != d.member() {
		t.Fatalf("RemoveFor must derive the same member, got %q", got)
	}

	other := Deadline{TicketID: 42, HolderID: "holder-10"}
	if other.member() == d.member() {
		t.Fatalf("different holders must not share a member")
	}
}
