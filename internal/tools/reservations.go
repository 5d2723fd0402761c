package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/novagate/internal/nova"
)

// Reservation statuses follow the lifecycle active -> modified/cancelled.
const (
	StatusActive    = "active"
	StatusModified  = "modified"
	StatusCancelled = "cancelled"
)

type Reservation struct {
	ID        string `json:"id"`
	GuestName string `json:"guestName"`
	City      string `json:"city"`
	CheckIn   string `json:"checkIn"`
	CheckOut  string `json:"checkOut"`
	RoomType  string `json:"roomType"`
	Status    string `json:"status"`
}

type RoomType struct {
	Type  string `json:"type"`
	Price int    `json:"price"`
}

// ReservationStore is the in-memory booking backend for the hotel demo
// tools. All operations are safe for concurrent use.
type ReservationStore struct {
	mu           sync.RWMutex
	reservations map[string]*Reservation
	cities       []string
	roomTypes    map[string]RoomType
}

func NewReservationStore() *ReservationStore {
	return &ReservationStore{
		reservations: make(map[string]*Reservation),
		cities:       []string{"New York", "Los Angeles", "Chicago", "Miami", "Las Vegas"},
		roomTypes: map[string]RoomType{
			"standard": {Type: "Standard Room", Price: 150},
			"deluxe":   {Type: "Deluxe Room", Price: 250},
			"suite":    {Type: "Suite", Price: 400},
		},
	}
}

func (s *ReservationStore) supportsCity(city string) bool {
	for _, c := range s.cities {
		if c == city {
			return true
		}
	}
	return false
}

func (s *ReservationStore) Create(guestName, city, checkIn, checkOut, roomType string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.supportsCity(city) {
		return nil, fmt.Errorf("city %q not supported", city)
	}
	rt, ok := s.roomTypes[strings.ToLower(roomType)]
	if !ok {
		return nil, fmt.Errorf("room type %q not available", roomType)
	}
	r := &Reservation{
		ID:        uuid.NewString(),
		GuestName: guestName,
		City:      city,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		RoomType:  rt.Type,
		Status:    StatusActive,
	}
	s.reservations[r.ID] = r
	return r, nil
}

// ForGuest returns the guest's active reservations.
func (s *ReservationStore) ForGuest(guestName string) []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Reservation
	for _, r := range s.reservations {
		if strings.EqualFold(r.GuestName, guestName) && r.Status == StatusActive {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// Modify applies non-empty updates to an active reservation and marks it
// modified. Returns nil if the reservation is absent or not active.
func (s *ReservationStore) Modify(id string, checkIn, checkOut string) *Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.Status != StatusActive {
		return nil
	}
	if checkIn != "" {
		r.CheckIn = checkIn
	}
	if checkOut != "" {
		r.CheckOut = checkOut
	}
	r.Status = StatusModified
	cp := *r
	return &cp
}

func (s *ReservationStore) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.Status != StatusActive {
		return false
	}
	r.Status = StatusCancelled
	return true
}

// Availability reports room availability per type for a supported city.
func (s *ReservationStore) Availability(city string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.supportsCity(city) {
		return nil, fmt.Errorf("city %q not supported", city)
	}
	out := make(map[string]bool, len(s.roomTypes))
	for _, rt := range s.roomTypes {
		out[rt.Type] = true
	}
	return out, nil
}

func (s *ReservationStore) Cities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cities...)
}

func (s *ReservationStore) RoomTypes() []RoomType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoomType, 0, len(s.roomTypes))
	for _, rt := range s.roomTypes {
		out = append(out, rt)
	}
	return out
}

var reservationCreateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"guestName": {"type": "string"},
		"city": {"type": "string"},
		"checkIn": {"type": "string", "description": "Check-in date, YYYY-MM-DD."},
		"checkOut": {"type": "string", "description": "Check-out date, YYYY-MM-DD."},
		"roomType": {"type": "string", "enum": ["standard", "deluxe", "suite"]}
	},
	"required": ["guestName", "city", "checkIn", "checkOut", "roomType"]
}`)

var reservationLookupSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"guestName": {"type": "string"}
	},
	"required": ["guestName"]
}`)

var reservationModifySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reservationId": {"type": "string"},
		"checkIn": {"type": "string"},
		"checkOut": {"type": "string"}
	},
	"required": ["reservationId"]
}`)

var reservationCancelSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"reservationId": {"type": "string"}
	},
	"required": ["reservationId"]
}`)

var availabilitySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"city": {"type": "string"}
	},
	"required": ["city"]
}`)

// ReservationTools exposes the hotel booking flow to the model.
func ReservationTools(store *ReservationStore) []nova.Tool {
	return []nova.Tool{
		{
			Spec: nova.ToolSpec{
				Name:        "createReservationTool",
				Description: "Create a hotel reservation for a guest.",
				InputSchema: reservationCreateSchema,
			},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				var args struct {
					GuestName string `json:"guestName"`
					City      string `json:"city"`
					CheckIn   string `json:"checkIn"`
					CheckOut  string `json:"checkOut"`
					RoomType  string `json:"roomType"`
				}
				if err := parseArgs(input, &args); err != nil {
					return nil, err
				}
				return store.Create(args.GuestName, args.City, args.CheckIn, args.CheckOut, args.RoomType)
			},
		},
		{
			Spec: nova.ToolSpec{
				Name:        "lookupReservationsTool",
				Description: "List the active reservations for a guest by name.",
				InputSchema: reservationLookupSchema,
			},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				var args struct {
					GuestName string `json:"guestName"`
				}
				if err := parseArgs(input, &args); err != nil {
					return nil, err
				}
				return map[string]any{"reservations": store.ForGuest(args.GuestName)}, nil
			},
		},
		{
			Spec: nova.ToolSpec{
				Name:        "modifyReservationTool",
				Description: "Change the check-in or check-out dates of an active reservation.",
				InputSchema: reservationModifySchema,
			},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				var args struct {
					ReservationID string `json:"reservationId"`
					CheckIn       string `json:"checkIn"`
					CheckOut      string `json:"checkOut"`
				}
				if err := parseArgs(input, &args); err != nil {
					return nil, err
				}
				r := store.Modify(args.ReservationID, args.CheckIn, args.CheckOut)
				if r == nil {
					return nil, fmt.Errorf("reservation %q not found or not active", args.ReservationID)
				}
				return r, nil
			},
		},
		{
			Spec: nova.ToolSpec{
				Name:        "cancelReservationTool",
				Description: "Cancel an active reservation by id.",
				InputSchema: reservationCancelSchema,
			},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				var args struct {
					ReservationID string `json:"reservationId"`
				}
				if err := parseArgs(input, &args); err != nil {
					return nil, err
				}
				if !store.Cancel(args.ReservationID) {
					return nil, fmt.Errorf("reservation %q not found or not active", args.ReservationID)
				}
				return map[string]string{"status": "cancelled", "reservationId": args.ReservationID}, nil
			},
		},
		{
			Spec: nova.ToolSpec{
				Name:        "checkAvailabilityTool",
				Description: "Check room availability in a supported city.",
				InputSchema: availabilitySchema,
			},
			Run: func(ctx context.Context, input map[string]string) (any, error) {
				var args struct {
					City string `json:"city"`
				}
				if err := parseArgs(input, &args); err != nil {
					return nil, err
				}
				avail, err := store.Availability(args.City)
				if err != nil {
					return nil, err
				}
				return map[string]any{"city": args.City, "availability": avail}, nil
			},
		},
	}
}
