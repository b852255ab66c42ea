package queries

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrClientNotFound = errors.New("api client not found")

// APIClient is a machine client allowed to exchange its secret for a token.
type APIClient struct {
	ID         int
	ClientID   string
	SecretHash string
	CreatedAt  time.Time
}

type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*APIClient, error) {
	query := `SELECT id, client_id, secret_hash, created_at FROM api_clients WHERE client_id = $1`

	var client APIClient
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.SecretHash,
		&client.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	return &client, nil
}

// Upsert stores a client, replacing the secret of an existing one.
func (r *ClientRepository) Upsert(ctx context.Context, clientID, secretHash string) (*APIClient, error) {
	query := `
		INSERT INTO api_clients (client_id, secret_hash) VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET secret_hash = EXCLUDED.secret_hash
		RETURNING id, created_at`

	client := APIClient{ClientID: clientID, SecretHash: secretHash}
	err := r.db.QueryRowContext(ctx, query, clientID, secretHash).Scan(&client.ID, &client.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &client, nil
}
