package patient

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrAlreadyExists   = errors.New("patient already registered for this user")
)

type Repository interface {
	Create(ctx context.Context, p Patient) (*Patient, error)
	GetByUserID(ctx context.Context, userID string) (*Patient, error)
	FindByEmailPhone(ctx context.Context, email, phone string) (*Patient, error)
	List(ctx context.Context) ([]Patient, error)
	Update(ctx context.Context, userID string, u Update) (*Patient, error)
	// DeleteByUserID removes the record and returns it as it was.
	DeleteByUserID(ctx context.Context, userID string) (*Patient, error)
}
