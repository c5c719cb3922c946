package hospital

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestService_CreateHospital(t *testing.T) {
	svc := newTestService()
	h := &Hospital{Name: "  City General ", City: "Pune"}
	if err := svc.CreateHospital(context.Background(), h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if h.Name != "City General" {
		t.Errorf("expected trimmed name, got %q", h.Name)
	}
	if !h.Active {
		t.Error("expected new hospital to be active")
	}
}

func TestService_CreateHospital_Validation(t *testing.T) {
	svc := newTestService()
	for _, h := range []*Hospital{{}, {Name: "X", Email: "nope"}} {
		if err := svc.CreateHospital(context.Background(), h); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation for %+v, got %v", h, err)
		}
	}
}

func TestService_UpdateHospital_NotFound(t *testing.T) {
	svc := newTestService()
	err := svc.UpdateHospital(context.Background(), &Hospital{ID: uuid.New(), Name: "Ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListHospitals_Filter(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreateHospital(ctx, &Hospital{Name: "Apollo", City: "Chennai"})
	svc.CreateHospital(ctx, &Hospital{Name: "Fortis", City: "Delhi"})
	svc.CreateHospital(ctx, &Hospital{Name: "AIIMS", City: "delhi"})

	_, total, err := svc.ListHospitals(ctx, Filter{City: "Delhi"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 hospitals in Delhi, got %d", total)
	}
}

func TestService_CreateDepartment(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	h := &Hospital{Name: "Apollo"}
	svc.CreateHospital(ctx, h)

	d := &Department{HospitalID: h.ID, Name: "Nephrology"}
	if err := svc.CreateDepartment(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Active {
		t.Error("expected department to be active")
	}

	depts, total, _ := svc.ListDepartments(ctx, h.ID, 10, 0)
	if total != 1 || depts[0].Name != "Nephrology" {
		t.Errorf("unexpected departments: %v", depts)
	}
}

func TestService_CreateDepartment_UnknownHospital(t *testing.T) {
	svc := newTestService()
	err := svc.CreateDepartment(context.Background(), &Department{HospitalID: uuid.New(), Name: "Cardiology"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_CreateDepartment_Validation(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateDepartment(context.Background(), &Department{Name: "Cardiology"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing hospital, got %v", err)
	}
	if err := svc.CreateDepartment(context.Background(), &Department{HospitalID: uuid.New()}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing name, got %v", err)
	}
}
