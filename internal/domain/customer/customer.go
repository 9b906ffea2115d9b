package customer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/retail-orders/internal/apperr"
	"github.com/example/retail-orders/internal/infrastructure/store"
)

// Partition is the store partition holding every customer.
const Partition = "Customer"

var (
	ErrCustomerNotFound = fmt.Errorf("customer %w", apperr.ErrNotFound)
	ErrInvalidName      = fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	ErrInvalidEmail     = fmt.Errorf("%w: email is invalid", apperr.ErrInvalidInput)
)

type Customer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Surname         string    `json:"surname"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	ShippingAddress string    `json:"shipping_address"`
	CreatedAt       time.Time `json:"created_at"`

	Version int64 `json:"-"`
}

func (c *Customer) PartitionKey() string { return Partition }
func (c *Customer) RowKey() string       { return c.ID }
func (c *Customer) GetVersion() int64    { return c.Version }
func (c *Customer) SetVersion(v int64)   { c.Version = v }

// DisplayName is the name copied onto orders: the username, or
// "name surname" when no username was given.
func (c *Customer) DisplayName() string {
	if u := strings.TrimSpace(c.Username); u != "" {
		return u
	}
	return strings.TrimSpace(c.Name + " " + c.Surname)
}

func New() *Customer { return &Customer{} }

// CreateInput holds the fields accepted when registering a customer.
type CreateInput struct {
	Name            string
	Surname         string
	Username        string
	Email           string
	ShippingAddress string
}

// UpdateInput replaces a customer's details; CreatedAt and ID are kept.
type UpdateInput struct {
	Name            string
	Surname         string
	Username        string
	Email           string
	ShippingAddress string
}

type Service struct {
	repo store.Repository[*Customer]
	now  func() time.Time
}

func NewService(repo store.Repository[*Customer]) *Service {
	return &Service{repo: repo, now: time.Now}
}

// validate requires a name or username and an email, when given, with an @.
func validate(name, username, email string) error {
	if strings.TrimSpace(name) == "" && strings.TrimSpace(username) == "" {
		return ErrInvalidName
	}
	if email = strings.TrimSpace(email); email != "" && !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Customer, error) {
	if err := validate(in.Name, in.Username, in.Email); err != nil {
		return nil, err
	}

	c := &Customer{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(in.Name),
		Surname:         strings.TrimSpace(in.Surname),
		Username:        strings.TrimSpace(in.Username),
		Email:           strings.TrimSpace(in.Email),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	c, err := s.repo.Get(ctx, Partition, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Customer, error) {
	if err := validate(in.Name, in.Username, in.Email); err != nil {
		return nil, err
	}

	c, _, err := store.Mutate(ctx, s.repo, Partition, id, func(c *Customer) (bool, error) {
		c.Name = strings.TrimSpace(in.Name)
		c.Surname = strings.TrimSpace(in.Surname)
		c.Username = strings.TrimSpace(in.Username)
		c.Email = strings.TrimSpace(in.Email)
		c.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
		return true, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns customers ordered by display name.
func (s *Service) List(ctx context.Context) ([]*Customer, error) {
	all, err := s.repo.QueryByPartition(ctx, Partition)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].DisplayName()) < strings.ToLower(all[j].DisplayName())
	})
	return all, nil
}

func (s *Service) Delete(ctx context.Context, id string) (store.DeleteResult, error) {
	return s.repo.Delete(ctx, Partition, id)
}
