package floor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavolohq/tavolo/internal/pagination"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func mustCreateTable(t *testing.T, svc *Service, tenantID string, number int) *Table {
	t.Helper()
	table, err := svc.CreateTable(context.Background(), tenantID, CreateTableInput{Number: number})
	require.NoError(t, err)
	return table
}

func TestCreateTableDefaults(t *testing.T) {
	svc, _ := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	assert.Equal(t, StatusAvailable, table.Status)
	assert.Equal(t, 4, table.Capacity)
	assert.Nil(t, table.OccupiedSince)
}

func TestDuplicateTableNumber(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	mustCreateTable(t, svc, "ten_abc", 7)

	_, err := svc.CreateTable(ctx, "ten_abc", CreateTableInput{Number: 7})
	assert.ErrorIs(t, err, ErrDuplicateNumber)

	// Same number under a different tenant is fine.
	_, err = svc.CreateTable(ctx, "ten_other", CreateTableInput{Number: 7})
	require.NoError(t, err)
}

func TestUpdateTableNumberConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	mustCreateTable(t, svc, "ten_abc", 1)
	second := mustCreateTable(t, svc, "ten_abc", 2)

	one := 1
	_, err := svc.UpdateTable(ctx, "ten_abc", second.ID, TableUpdate{Number: &one})
	assert.ErrorIs(t, err, ErrDuplicateNumber)

	three := 3
	updated, err := svc.UpdateTable(ctx, "ten_abc", second.ID, TableUpdate{Number: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Number)

	// The old number is free again.
	_, err = svc.CreateTable(ctx, "ten_abc", CreateTableInput{Number: 2})
	require.NoError(t, err)
}

func TestOccupancyLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	got, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusOccupied, ChangeStatusInput{Customers: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusOccupied, got.Status)
	require.NotNil(t, got.OccupiedSince)

	records, err := store.ListOccupancy(ctx, "ten_abc", table.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].EndTime)
	assert.Equal(t, 3, records[0].Customers)
	assert.Equal(t, 1, records[0].TableNumber)

	got, err = svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusCleaning, ChangeStatusInput{
		OrderID: "ord_1", TotalSpentCents: 12500,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCleaning, got.Status)
	assert.Nil(t, got.OccupiedSince)

	records, err = store.ListOccupancy(ctx, "ten_abc", table.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].EndTime)
	assert.Equal(t, "ord_1", records[0].OrderID)
	assert.Equal(t, int64(12500), records[0].TotalSpentCents)
}

func TestChangeStatusDefaultsPartyToOne(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	_, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusOccupied, ChangeStatusInput{})
	require.NoError(t, err)

	records, err := store.ListOccupancy(ctx, "ten_abc", table.ID, nil, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Customers)
}

func TestPlainTransitionsSkipLedger(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	for _, status := range []TableStatus{StatusReserved, StatusCleaning, StatusInactive, StatusAvailable} {
		got, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, status, ChangeStatusInput{})
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
		assert.Nil(t, got.OccupiedSince)
	}

	records, err := store.ListOccupancy(ctx, "ten_abc", table.ID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInvalidStatusRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	_, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, "flooded", ChangeStatusInput{})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeleteOccupiedTableRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	_, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusOccupied, ChangeStatusInput{})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteTable(ctx, "ten_abc", table.ID), ErrTableOccupied)

	_, err = svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusAvailable, ChangeStatusInput{})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTable(ctx, "ten_abc", table.ID))
}

func TestBindQRCode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	ok, err := svc.BindQRCode(ctx, "ten_abc", table.ID, "qr_one")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.GetTable(ctx, "ten_abc", table.ID)
	require.NoError(t, err)
	assert.Equal(t, "qr_one", got.QRCodeID)

	// An unknown table id is a miss, not an error.
	ok, err = svc.BindQRCode(ctx, "ten_abc", "tbl_ghost", "qr_one")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnbindQRCodeOnlyWhenCurrent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	_, err := svc.BindQRCode(ctx, "ten_abc", table.ID, "qr_old")
	require.NoError(t, err)
	_, err = svc.BindQRCode(ctx, "ten_abc", table.ID, "qr_new")
	require.NoError(t, err)

	// A stale token cannot clear the newer binding.
	require.NoError(t, svc.UnbindQRCode(ctx, "ten_abc", table.ID, "qr_old"))
	got, err := svc.GetTable(ctx, "ten_abc", table.ID)
	require.NoError(t, err)
	assert.Equal(t, "qr_new", got.QRCodeID)

	require.NoError(t, svc.UnbindQRCode(ctx, "ten_abc", table.ID, "qr_new"))
	got, err = svc.GetTable(ctx, "ten_abc", table.ID)
	require.NoError(t, err)
	assert.Empty(t, got.QRCodeID)

	// Unbinding against a deleted table is a no-op.
	require.NoError(t, svc.DeleteTable(ctx, "ten_abc", table.ID))
	require.NoError(t, svc.UnbindQRCode(ctx, "ten_abc", table.ID, "qr_new"))
}

func TestHistorySurvivesTableDeletion(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 12)

	_, err := svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusOccupied, ChangeStatusInput{})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, "ten_abc", table.ID, StatusAvailable, ChangeStatusInput{})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTable(ctx, "ten_abc", table.ID))

	records, err := store.ListOccupancy(ctx, "ten_abc", table.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].TableNumber, "history keeps the number snapshot")
}

func TestConcurrentCloseOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: "occ_1", TenantID: "ten_abc", TableID: "tbl_1", TableNumber: 1,
		StartTime: now, Customers: 2,
	}))

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closed, err := store.CloseOpenOccupancy(ctx, "ten_abc", "tbl_1", time.Now().UTC(), "", 0)
			assert.NoError(t, err)
			wins <- closed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestAreaDeleteSoftensWhenReferenced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	area, err := svc.CreateArea(ctx, "ten_abc", "Terrace")
	require.NoError(t, err)
	_, err = svc.CreateTable(ctx, "ten_abc", CreateTableInput{Number: 1, AreaID: area.ID})
	require.NoError(t, err)

	deleted, err := svc.DeleteArea(ctx, "ten_abc", area.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "referenced areas are deactivated, not deleted")

	got, err := svc.GetArea(ctx, "ten_abc", area.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Inactive areas drop out of the default listing.
	areas, err := svc.ListAreas(ctx, "ten_abc", false)
	require.NoError(t, err)
	assert.Empty(t, areas)

	empty, err := svc.CreateArea(ctx, "ten_abc", "Patio")
	require.NoError(t, err)
	deleted, err = svc.DeleteArea(ctx, "ten_abc", empty.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSavePositionsPartialSuccess(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	mine := mustCreateTable(t, svc, "ten_abc", 1)
	theirs := mustCreateTable(t, svc, "ten_other", 1)

	updated, err := svc.SavePositions(ctx, "ten_abc", []PositionUpdate{
		{TableID: mine.ID, PositionX: 10, PositionY: 20},
		{TableID: theirs.ID, PositionX: 30, PositionY: 40},
		{TableID: "tbl_missing", PositionX: 50, PositionY: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated, "foreign and missing tables are skipped, not errors")

	got, err := svc.GetTable(ctx, "ten_abc", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.PositionX)
	assert.Equal(t, 20.0, got.PositionY)

	// The other tenant's table is untouched.
	got, err = svc.GetTable(ctx, "ten_other", theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.PositionX)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	stats, err := svc.Statistics(ctx, "ten_abc", table.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, &Statistics{}, stats, "no closed seatings yields the zero struct")

	now := time.Now().UTC()
	seed := []struct {
		minutes   float64
		spent     int64
		customers int
	}{
		{60, 10000, 2},
		{30, 20000, 4},
	}
	for i, s := range seed {
		start := now.Add(-time.Duration(i+1) * 24 * time.Hour)
		end := start.Add(time.Duration(s.minutes) * time.Minute)
		require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
			ID: idString(i), TenantID: "ten_abc", TableID: table.ID, TableNumber: 1,
			StartTime: start, EndTime: &end, TotalSpentCents: s.spent, Customers: s.customers,
		}))
	}
	// An open seating and an old closed one stay out of the window.
	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: "occ_open", TenantID: "ten_abc", TableID: table.ID, TableNumber: 1,
		StartTime: now, Customers: 2,
	}))
	oldStart := now.AddDate(0, 0, -90)
	oldEnd := oldStart.Add(time.Hour)
	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: "occ_old", TenantID: "ten_abc", TableID: table.ID, TableNumber: 1,
		StartTime: oldStart, EndTime: &oldEnd, TotalSpentCents: 99999, Customers: 9,
	}))

	stats, err = svc.Statistics(ctx, "ten_abc", table.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Seatings)
	assert.InDelta(t, 45.0, stats.AvgDurationMinutes, 0.01)
	assert.Equal(t, int64(30000), stats.TotalSpentCents)
	assert.Equal(t, int64(20000), stats.MaxSpentCents)
	assert.InDelta(t, 15000.0, stats.AvgSpentCents, 0.01)
	assert.InDelta(t, 3.0, stats.AvgPartySize, 0.01)
}

func TestHistoryDurations(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	start := time.Now().UTC().Add(-2 * time.Hour)
	end := start.Add(90 * time.Minute)
	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: "occ_closed", TenantID: "ten_abc", TableID: table.ID, TableNumber: 1,
		StartTime: start, EndTime: &end, Customers: 2,
	}))
	require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
		ID: "occ_open", TenantID: "ten_abc", TableID: table.ID, TableNumber: 1,
		StartTime: time.Now().UTC().Add(-10 * time.Minute), Customers: 2,
	}))

	entries, next, err := svc.History(ctx, "ten_abc", table.ID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Open)
	assert.InDelta(t, 10.0, entries[0].DurationMinutes, 1.0)
	assert.False(t, entries[1].Open)
	assert.InDelta(t, 90.0, entries[1].DurationMinutes, 0.01)
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	table := mustCreateTable(t, svc, "ten_abc", 1)

	base := time.Now().UTC().Add(-5 * time.Hour)
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		end := start.Add(30 * time.Minute)
		require.NoError(t, store.OpenOccupancy(ctx, &OccupancyRecord{
			ID: fmt.Sprintf("occ_%d", i), TenantID: "ten_abc", TableID: table.ID,
			TableNumber: 1, StartTime: start, EndTime: &end, Customers: 2,
		}))
	}

	first, next, err := svc.History(ctx, "ten_abc", table.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "occ_4", first[0].ID)
	assert.Equal(t, "occ_3", first[1].ID)

	cursor, err := pagination.Decode(next)
	require.NoError(t, err)
	second, next, err := svc.History(ctx, "ten_abc", table.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "occ_2", second[0].ID)
	assert.Equal(t, "occ_1", second[1].ID)

	cursor, err = pagination.Decode(next)
	require.NoError(t, err)
	last, next, err := svc.History(ctx, "ten_abc", table.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Empty(t, next)
	assert.Equal(t, "occ_0", last[0].ID)
}

func TestTableMapGroupsByArea(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	terrace, err := svc.CreateArea(ctx, "ten_abc", "Terrace")
	require.NoError(t, err)
	_, err = svc.CreateTable(ctx, "ten_abc", CreateTableInput{Number: 1, AreaID: terrace.ID})
	require.NoError(t, err)
	_, err = svc.CreateTable(ctx, "ten_abc", CreateTableInput{Number: 2, AreaID: terrace.ID})
	require.NoError(t, err)
	mustCreateTable(t, svc, "ten_abc", 3)

	grouped, err := svc.TableMap(ctx, "ten_abc")
	require.NoError(t, err)
	assert.Len(t, grouped[terrace.ID], 2)
	assert.Len(t, grouped[""], 1)
}

func idString(i int) string {
	return "occ_seed_" + string(rune('a'+i))
}
