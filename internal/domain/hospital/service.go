package hospital

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

var ErrValidation = errors.New("invalid hospital data")

type Service struct {
	hospitals HospitalRepository
	depts     DepartmentRepository
}

func NewService(hospitals HospitalRepository, depts DepartmentRepository) *Service {
	return &Service{hospitals: hospitals, depts: depts}
}

// -- Hospital --

func validateHospital(h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	h.City = strings.TrimSpace(h.City)
	h.State = strings.TrimSpace(h.State)
	h.Email = strings.TrimSpace(h.Email)
	if h.Email != "" {
		if _, err := mail.ParseAddress(h.Email); err != nil {
			return fmt.Errorf("%w: malformed email %q", ErrValidation, h.Email)
		}
	}
	return nil
}

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	if err := validateHospital(h); err != nil {
		return err
	}
	h.Active = true
	return s.hospitals.Create(ctx, h)
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return s.hospitals.GetByID(ctx, id)
}

func (s *Service) UpdateHospital(ctx context.Context, h *Hospital) error {
	if err := validateHospital(h); err != nil {
		return err
	}
	return s.hospitals.Update(ctx, h)
}

func (s *Service) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	return s.hospitals.Delete(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context, f Filter, limit, offset int) ([]*Hospital, int, error) {
	return s.hospitals.List(ctx, f, limit, offset)
}

// -- Department --

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: department name is required", ErrValidation)
	}
	if d.HospitalID == uuid.Nil {
		return fmt.Errorf("%w: hospitalId is required", ErrValidation)
	}
	if _, err := s.hospitals.GetByID(ctx, d.HospitalID); err != nil {
		return err
	}
	d.Active = true
	return s.depts.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.depts.GetByID(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, d *Department) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: department name is required", ErrValidation)
	}
	return s.depts.Update(ctx, d)
}

func (s *Service) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	return s.depts.Delete(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Department, int, error) {
	return s.depts.ListByHospital(ctx, hospitalID, limit, offset)
}
