package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
)

type petRepository struct {
	BaseRepository
}

func NewPetRepository(base BaseRepository) repository.PetRepository {
	return &petRepository{base}
}

func (r *petRepository) Create(ctx context.Context, pet *model.Pet) error {
	query := `
		INSERT INTO pets (
			id, organization_id, customer_id, name, species, breed,
			birth_date, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	pet.ID = uuid.New()
	pet.CreatedAt = time.Now()
	pet.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		pet.ID,
		pet.OrganizationID,
		pet.CustomerID,
		pet.Name,
		pet.Species,
		pet.Breed,
		pet.BirthDate,
		pet.Notes,
		pet.CreatedAt,
		pet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pet: %w", err)
	}
	return nil
}

func (r *petRepository) Get(ctx context.Context, id uuid.UUID) (*model.Pet, error) {
	query := `
		SELECT id, organization_id, customer_id, name, species, breed,
			   birth_date, notes, created_at, updated_at
		FROM pets
		WHERE id = $1
	`
	var pet model.Pet
	err := r.db.GetContext(ctx, &pet, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pet: %w", err)
	}
	return &pet, nil
}

func (r *petRepository) Update(ctx context.Context, pet *model.Pet) error {
	query := `
		UPDATE pets
		SET name = $1, species = $2, breed = $3, birth_date = $4, notes = $5, updated_at = $6
		WHERE id = $7
	`
	pet.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		pet.Name,
		pet.Species,
		pet.Breed,
		pet.BirthDate,
		pet.Notes,
		pet.UpdatedAt,
		pet.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pet not found")
	}
	return nil
}

func (r *petRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pet not found")
	}
	return nil
}

func (r *petRepository) List(ctx context.Context, organizationID uuid.UUID) ([]*model.Pet, error) {
	query := `
		SELECT id, organization_id, customer_id, name, species, breed,
			   birth_date, notes, created_at, updated_at
		FROM pets
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	var pets []*model.Pet
	if err := r.db.SelectContext(ctx, &pets, query, organizationID); err != nil {
		return nil, fmt.Errorf("failed to list pets: %w", err)
	}
	return pets, nil
}
