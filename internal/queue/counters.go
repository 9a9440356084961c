package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Counters hands out monotonically increasing instance numbers per worker
// node. Numbers survive restarts so container names never collide.
type Counters struct {
	db *sql.DB
}

func NewCounters(db *sql.DB) *Counters {
	return &Counters{db: db}
}

// Next atomically increments and returns the counter for the node. The first
// call returns 1.
func (c *Counters) Next(ctx context.Context, nodeID uuid.UUID) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
INSERT INTO instance_counters(node_id, count)
VALUES(?, 1)
ON CONFLICT(node_id) DO UPDATE SET count = count + 1
RETURNING count;
`, nodeID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next instance counter: %w", err)
	}
	return n, nil
}

// Reset clears the counter for the node after its instances are cleaned up.
func (c *Counters) Reset(ctx context.Context, nodeID uuid.UUID) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM instance_counters WHERE node_id = ?;", nodeID.String())
	if err != nil {
		return fmt.Errorf("reset instance counter: %w", err)
	}
	return nil
}
