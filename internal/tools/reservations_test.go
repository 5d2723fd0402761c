package tools

import (
	"context"
	"strings"
	"testing"
)

func TestReservationLifecycle(t *testing.T) {
	s := NewReservationStore()

	r, err := s.Create("Ada Lovelace", "Chicago", "2026-09-01", "2026-09-05", "deluxe")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.RoomType != "Deluxe Room" || r.Status != StatusActive {
		t.Fatalf("reservation = %+v", r)
	}

	got := s.ForGuest("ada lovelace")
	if len(got) != 1 || got[0].ID != r.ID {
		t.Fatalf("ForGuest = %+v, want one reservation %s", got, r.ID)
	}

	mod := s.Modify(r.ID, "", "2026-09-07")
	if mod == nil || mod.CheckOut != "2026-09-07" || mod.Status != StatusModified {
		t.Fatalf("Modify = %+v", mod)
	}

	// Modified reservations are no longer active, so cancel refuses.
	if s.Cancel(r.ID) {
		t.Fatal("Cancel succeeded on non-active reservation")
	}
}

func TestReservationValidation(t *testing.T) {
	s := NewReservationStore()
	if _, err := s.Create("Bob", "Atlantis", "2026-09-01", "2026-09-02", "suite"); err == nil {
		t.Fatal("Create accepted unsupported city")
	}
	if _, err := s.Create("Bob", "Miami", "2026-09-01", "2026-09-02", "penthouse"); err == nil {
		t.Fatal("Create accepted unknown room type")
	}
	if _, err := s.Availability("Atlantis"); err == nil {
		t.Fatal("Availability accepted unsupported city")
	}
}

func TestReservationToolsRoundTrip(t *testing.T) {
	store := NewReservationStore()
	r := NewRegistry()
	for _, tool := range ReservationTools(store) {
		r.Register(tool)
	}

	create, _ := r.Resolve("createReservationTool")
	res, err := create.Run(context.Background(), map[string]string{
		"content": `{"guestName":"Grace","city":"Miami","checkIn":"2026-10-01","checkOut":"2026-10-03","roomType":"suite"}`,
	})
	if err != nil {
		t.Fatalf("create tool: %v", err)
	}
	created := res.(*Reservation)

	lookup, _ := r.Resolve("lookupReservationsTool")
	res, err = lookup.Run(context.Background(), map[string]string{"content": `{"guestName":"grace"}`})
	if err != nil {
		t.Fatalf("lookup tool: %v", err)
	}
	listed := res.(map[string]any)["reservations"].([]*Reservation)
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("lookup = %+v", listed)
	}

	cancel, _ := r.Resolve("cancelReservationTool")
	if _, err := cancel.Run(context.Background(), map[string]string{
		"content": `{"reservationId":"` + created.ID + `"}`,
	}); err != nil {
		t.Fatalf("cancel tool: %v", err)
	}

	// Second cancel fails: the reservation is no longer active.
	_, err = cancel.Run(context.Background(), map[string]string{
		"content": `{"reservationId":"` + created.ID + `"}`,
	})
	if err == nil || !strings.Contains(err.Error(), "not found or not active") {
		t.Fatalf("second cancel err = %v", err)
	}
}
