package floor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/pagination"
	"github.com/tavolohq/tavolo/internal/testutil"
)

func seedTenant(t *testing.T, db *sql.DB) string {
	t.Helper()
	id := idgen.WithPrefix("ten_")
	_, err := db.Exec(`
		INSERT INTO tenants (id, name, slug, restaurant_type, email)
		VALUES ($1, 'Trattoria Test', $2, 'alacarte', 'test@example.com')`,
		id, id)
	require.NoError(t, err)
	return id
}

func seedPGTable(t *testing.T, store *PostgresStore, tenantID string, number int) *Table {
	t.Helper()
	now := time.Now().UTC()
	table := &Table{
		ID: idgen.WithPrefix("tbl_"), TenantID: tenantID, Number: number,
		Capacity: 4, Status: StatusAvailable, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateTable(context.Background(), table))
	return table
}

func TestPostgresDuplicateNumberConstraint(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	tenantID := seedTenant(t, db)
	other := seedTenant(t, db)
	seedPGTable(t, store, tenantID, 7)

	now := time.Now().UTC()
	err := store.CreateTable(context.Background(), &Table{
		ID: idgen.WithPrefix("tbl_"), TenantID: tenantID, Number: 7,
		Capacity: 2, Status: StatusAvailable, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrDuplicateNumber)

	// Same number under a different tenant is fine.
	seedPGTable(t, store, other, 7)
}

func TestPostgresAtMostOneOpenOccupancy(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	tenantID := seedTenant(t, db)
	table := seedPGTable(t, store, tenantID, 1)

	open := func() error {
		return store.OpenOccupancy(ctx, &OccupancyRecord{
			ID: idgen.WithPrefix("occ_"), TenantID: tenantID, TableID: table.ID,
			TableNumber: table.Number, StartTime: time.Now().UTC(), Customers: 2,
		})
	}
	require.NoError(t, open())
	// occupancy_one_open_per_table rejects a second open record.
	assert.Error(t, open())

	closed, err := store.CloseOpenOccupancy(ctx, tenantID, table.ID, time.Now().UTC(), "ord_1", 4500)
	require.NoError(t, err)
	assert.True(t, closed)

	// Closed record out of the way, a new seating can start.
	require.NoError(t, open())
}

func TestPostgresConcurrentCloseOnlyOneWins(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	tenantID := seedTenant(t, db)
	table := seedPGTable(t, store, tenantID, 1)

	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: idgen.WithPrefix("occ_"), TenantID: tenantID, TableID: table.ID,
		TableNumber: table.Number, StartTime: time.Now().UTC(), Customers: 4,
	}))

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closed, err := store.CloseOpenOccupancy(ctx, tenantID, table.ID, time.Now().UTC(), "", 0)
			if err == nil && closed {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)
}

func TestPostgresOccupancyPagination(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	tenantID := seedTenant(t, db)
	table := seedPGTable(t, store, tenantID, 1)

	base := time.Now().UTC().Add(-6 * time.Hour)
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		end := start.Add(45 * time.Minute)
		require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
			ID: fmt.Sprintf("occ_pg_%d", i), TenantID: tenantID, TableID: table.ID,
			TableNumber: table.Number, StartTime: start, EndTime: &end, Customers: 2,
		}))
	}

	first, err := store.ListOccupancy(ctx, tenantID, table.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "occ_pg_4", first[0].ID)

	cursor := &pagination.Cursor{CreatedAt: first[1].StartTime, ID: first[1].ID}
	second, err := store.ListOccupancy(ctx, tenantID, table.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "occ_pg_2", second[0].ID)
	assert.Equal(t, "occ_pg_1", second[1].ID)
}
