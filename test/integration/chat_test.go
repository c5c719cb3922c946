//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/organlink/organlink/internal/domain/chat"
	"github.com/organlink/organlink/internal/domain/hospital"
)

func TestConversationRepo(t *testing.T) {
	ctx := context.Background()
	pool := newSchema(t, "chat")
	convs := chat.NewConversationRepo(pool)
	msgs := chat.NewMessageRepo(pool)

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	matchID := uuid.New()

	c := &chat.Conversation{MatchID: &matchID, Participants: []uuid.UUID{alice, bob}}
	if err := convs.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := convs.Create(ctx, &chat.Conversation{Participants: []uuid.UUID{bob, carol}}); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	t.Run("GetByMatch", func(t *testing.T) {
		got, err := convs.GetByMatch(ctx, matchID)
		if err != nil {
			t.Fatalf("GetByMatch: %v", err)
		}
		if got.ID != c.ID || len(got.Participants) != 2 {
			t.Errorf("unexpected conversation: %+v", got)
		}
		if _, err := convs.GetByMatch(ctx, uuid.New()); !errors.Is(err, chat.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListForParticipant", func(t *testing.T) {
		_, total, err := convs.ListForParticipant(ctx, bob, 10, 0)
		if err != nil {
			t.Fatalf("ListForParticipant: %v", err)
		}
		if total != 2 {
			t.Errorf("bob total = %d, want 2", total)
		}
		items, total, _ := convs.ListForParticipant(ctx, alice, 10, 0)
		if total != 1 || items[0].ID != c.ID {
			t.Errorf("alice conversations = %d", total)
		}
	})

	t.Run("MessagesOldestFirst", func(t *testing.T) {
		for _, body := range []string{"hello", "hi", "how are you"} {
			if err := msgs.Create(ctx, &chat.Message{ConversationID: c.ID, SenderID: alice, Body: body}); err != nil {
				t.Fatalf("Create message: %v", err)
			}
		}
		items, total, err := msgs.List(ctx, c.ID, 10, 0)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if total != 3 || items[0].Body != "hello" || items[2].Body != "how are you" {
			t.Errorf("messages = %d, first %q", total, items[0].Body)
		}
	})
}

func TestHospitalDepartments(t *testing.T) {
	ctx := context.Background()
	pool := newSchema(t, "hosp")
	svc := hospital.NewService(hospital.NewHospitalRepo(pool), hospital.NewDepartmentRepo(pool))

	h := &hospital.Hospital{Name: "City General", City: "Springfield", Active: true}
	if err := svc.CreateHospital(ctx, h); err != nil {
		t.Fatalf("CreateHospital: %v", err)
	}
	d := &hospital.Department{HospitalID: h.ID, Name: "Nephrology", Active: true}
	if err := svc.CreateDepartment(ctx, d); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	items, total, err := svc.ListDepartments(ctx, h.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListDepartments: %v", err)
	}
	if total != 1 || items[0].Name != "Nephrology" {
		t.Errorf("departments = %d", total)
	}

	found, _, err := svc.ListHospitals(ctx, hospital.Filter{Query: "spring"}, 10, 0)
	if err != nil {
		t.Fatalf("ListHospitals: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("query by city matched %d hospitals, want 1", len(found))
	}

	if err := svc.DeleteHospital(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHospital: %v", err)
	}
	if _, err := svc.GetDepartment(ctx, d.ID); !errors.Is(err, hospital.ErrNotFound) {
		t.Errorf("department should cascade with its hospital, got %v", err)
	}
}
