package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"

	"revchain/core"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, db
}

func sampleBatch(start uint64) []core.CommittedEvent {
	return []core.CommittedEvent{
		{Sequence: start, Type: "revenue.deposit", Attributes: map[string]string{"holder": "rev1alice", "amount": "100"}, Timestamp: 1000},
		{Sequence: start + 1, Type: "transfer", Attributes: map[string]string{"from": "rev1alice", "to": "rev1bob", "amount": "40"}, Timestamp: 1001},
		{Sequence: start + 2, Type: "revenue.withdraw", Attributes: map[string]string{"holder": "rev1bob", "amount": "7"}, Timestamp: 1002},
	}
}

func TestRecordAndQuery(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleBatch(1)))
	require.NoError(t, store.Record(ctx, nil))

	all, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "rev1alice", all[1].Holder)
	require.Equal(t, "rev1bob", all[1].Counterparty)

	bob, err := store.Query(ctx, Filter{Holder: "rev1bob"})
	require.NoError(t, err)
	require.Len(t, bob, 2)

	withdrawals, err := store.Query(ctx, Filter{Type: "revenue.withdraw"})
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	require.JSONEq(t, `{"holder":"rev1bob","amount":"7"}`, withdrawals[0].Attributes)

	page, err := store.Query(ctx, Filter{After: all[0].Position, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, all[1].Position, page[0].Position)
}

func TestVerifyDetectsTampering(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleBatch(1)))
	require.NoError(t, store.Record(ctx, sampleBatch(4)))
	require.NoError(t, store.Verify(ctx))

	rows, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	target := rows[2]
	require.NoError(t, db.Model(&EventRecord{}).Where("position = ?", target.Position).
		Update("attributes", `{"holder":"rev1bob","amount":"7000"}`).Error)

	err = store.Verify(ctx)
	require.ErrorIs(t, err, ErrChainBroken)
}

func TestChainResumesAfterReopen(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, sampleBatch(1)))

	resumed, err := New(db)
	require.NoError(t, err)
	require.NoError(t, resumed.Record(ctx, sampleBatch(4)))
	require.NoError(t, resumed.Verify(ctx))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}

func TestExportParquet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, sampleBatch(1)))

	path := filepath.Join(t.TempDir(), "events.parquet")
	written, err := store.ExportParquet(ctx, path, Filter{Holder: "rev1alice"})
	require.NoError(t, err)
	require.Equal(t, 2, written)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 2, pr.GetNumRows())
	rows := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "revenue.deposit", rows[0].Type)
	require.Equal(t, "transfer", rows[1].Type)
	require.Equal(t, "rev1bob", rows[1].Counterparty)
}

func TestParquetRowSchema(t *testing.T) {
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(&buf), new(parquetRow), 1)
	require.NoError(t, err)
	require.NoError(t, pw.Write(parquetRow{Type: "revenue.withdraw", Holder: "rev1alice", Attributes: "{}"}))
	require.NoError(t, pw.WriteStop())
	require.NotZero(t, buf.Len())
}
