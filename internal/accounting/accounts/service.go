package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

// Service exposes the chart of accounts.
type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the organization's accounts ordered by code.
func (s *Service) List(ctx context.Context, organizationID int64) ([]Account, error) {
	return s.repo.List(ctx, organizationID)
}

// Tree returns the organization's accounts nested under their parents.
func (s *Service) Tree(ctx context.Context, organizationID int64) ([]Account, error) {
	accounts, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return BuildTree(accounts), nil
}

// Get returns one account of the organization.
func (s *Service) Get(ctx context.Context, organizationID, id int64) (Account, error) {
	return s.repo.Get(ctx, organizationID, id)
}

// Create stores a new account, converting its amount to minor units.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if input.ParentID != nil {
		if _, err := s.repo.Get(ctx, input.OrganizationID, *input.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Account{}, ErrParentNotFound
			}
			return Account{}, err
		}
	}
	now := s.now().UTC()
	return s.repo.Create(ctx, Account{
		OrganizationID: input.OrganizationID,
		Code:           input.Code,
		Name:           input.Name,
		Type:           input.Type,
		AmountMinor:    ledger.ToMinor(input.Amount),
		ParentID:       input.ParentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
