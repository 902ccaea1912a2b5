package receiptstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receipt"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/receiptstore"
)

func sampleReceipt(t *testing.T, runID string) receipt.Receipt {
	t.Helper()
	now := time.Now().UTC()
	r := receipt.NewBuilder("mock").
		WithRunID(runID).
		WithTiming(now, now.Add(time.Second)).
		WithOutcome(receipt.OutcomeComplete).
		Build()
	r, err := receipt.WithHash(r)
	require.NoError(t, err)
	return r
}

func TestSQLiteStore_PushInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := receiptstore.NewSQLiteStore(db)
	require.NoError(t, err)

	r := sampleReceipt(t, "run-1")
	mock.ExpectExec("INSERT INTO receipts").
		WithArgs(r.Meta.RunID, *r.ReceiptSHA256, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Push(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_PushRejectsUnhashedReceipt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := receiptstore.NewSQLiteStore(db)
	require.NoError(t, err)

	unhashed := receipt.NewBuilder("mock").WithRunID("run-2").Build()
	err = store.Push(context.Background(), unhashed)
	require.Error(t, err)
}

func TestSQLiteStore_ListReturnsRowsInPushOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS receipts").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := receiptstore.NewSQLiteStore(db)
	require.NoError(t, err)

	r1 := sampleReceipt(t, "run-1")
	r2 := sampleReceipt(t, "run-2")

	body1, err := json.Marshal(r1)
	require.NoError(t, err)
	body2, err := json.Marshal(r2)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"body"}).AddRow(string(body1)).AddRow(string(body2))
	mock.ExpectQuery("SELECT body FROM receipts").WithArgs(10).WillReturnRows(rows)

	out, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "run-1", out[0].Meta.RunID)
	require.Equal(t, "run-2", out[1].Meta.RunID)
	require.NoError(t, mock.ExpectationsWereMet())
}
