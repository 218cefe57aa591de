package warehouse_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snowquery/engine/pkg/apperrors"
	"github.com/snowquery/engine/pkg/testhelpers"
	"github.com/snowquery/engine/pkg/warehouse"
)

func TestIntrospect_CapturesTablesAndColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Column fetches for different tables run concurrently.
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(regexp.QuoteMeta("LIST TABLES ANALYTICS.PUBLIC")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "kind", "comment"}).
			AddRow("MEMBERS", "BASE TABLE", "Enrolled members").
			AddRow("V_ACTIVE", "VIEW", nil))

	mock.ExpectQuery(regexp.QuoteMeta("LIST COLUMNS ANALYTICS.PUBLIC.MEMBERS")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "type", "nullable", "comment"}).
			AddRow("ID", "int", "NO", nil).
			AddRow("NAME", "nvarchar(200)", "YES", "Full name"))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT ROWS ANALYTICS.PUBLIC.MEMBERS")).WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(1250)))

	mock.ExpectQuery(regexp.QuoteMeta("LIST COLUMNS ANALYTICS.PUBLIC.V_ACTIVE")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "type", "nullable", "comment"}).
			AddRow("ID", "int", "NO", nil))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT ROWS ANALYTICS.PUBLIC.V_ACTIVE")).WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(800)))

	in := warehouse.NewIntrospector(&testhelpers.FakeDriver{}, zap.NewNop())
	snapshot, err := in.Introspect(context.Background(), db, "ANALYTICS", []string{"PUBLIC"})
	require.NoError(t, err)

	require.Len(t, snapshot.Tables, 2)
	assert.False(t, snapshot.CapturedAt.IsZero())

	members := snapshot.Tables[0]
	assert.Equal(t, "MEMBERS", members.Name)
	assert.Equal(t, "PUBLIC", members.Schema)
	assert.Equal(t, "Enrolled members", members.Comment)
	assert.Equal(t, int64(1250), members.RowCount)
	require.Len(t, members.Columns, 2)
	assert.False(t, members.Columns[0].Nullable)
	assert.True(t, members.Columns[1].Nullable)
	assert.Equal(t, "Full name", members.Columns[1].Comment)

	view := snapshot.Tables[1]
	assert.Equal(t, "VIEW", view.Type)
	assert.Empty(t, view.Comment)
}

func TestIntrospect_RowCountFailureDefaultsToZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIST TABLES ANALYTICS.PUBLIC")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "kind", "comment"}).
			AddRow("MEMBERS", "BASE TABLE", nil))
	mock.ExpectQuery(regexp.QuoteMeta("LIST COLUMNS ANALYTICS.PUBLIC.MEMBERS")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "type", "nullable", "comment"}).
			AddRow("ID", "int", "NO", nil))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT ROWS ANALYTICS.PUBLIC.MEMBERS")).
		WillReturnError(errors.New("permission denied"))

	in := warehouse.NewIntrospector(&testhelpers.FakeDriver{}, zap.NewNop())
	snapshot, err := in.Introspect(context.Background(), db, "ANALYTICS", []string{"PUBLIC"})
	require.NoError(t, err)

	require.Len(t, snapshot.Tables, 1)
	assert.Equal(t, int64(0), snapshot.Tables[0].RowCount)
}

func TestIntrospect_ColumnFailureAbortsPass(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIST TABLES ANALYTICS.PUBLIC")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "kind", "comment"}).
			AddRow("MEMBERS", "BASE TABLE", nil))
	mock.ExpectQuery(regexp.QuoteMeta("LIST COLUMNS ANALYTICS.PUBLIC.MEMBERS")).
		WillReturnError(errors.New("connection lost"))

	in := warehouse.NewIntrospector(&testhelpers.FakeDriver{}, zap.NewNop())
	_, err = in.Introspect(context.Background(), db, "ANALYTICS", []string{"PUBLIC"})
	require.Error(t, err)

	var introErr *apperrors.IntrospectionError
	require.ErrorAs(t, err, &introErr)
	assert.Equal(t, "PUBLIC", introErr.Schema)
	assert.Contains(t, err.Error(), "MEMBERS")
}

func TestIntrospect_TableListFailureAbortsPass(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIST TABLES ANALYTICS.REPORTING")).
		WillReturnError(errors.New("invalid database"))

	in := warehouse.NewIntrospector(&testhelpers.FakeDriver{}, zap.NewNop())
	_, err = in.Introspect(context.Background(), db, "ANALYTICS", []string{"REPORTING"})
	require.Error(t, err)

	var introErr *apperrors.IntrospectionError
	require.ErrorAs(t, err, &introErr)
	assert.Equal(t, "REPORTING", introErr.Schema)
}

func TestIntrospect_EmptySchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIST TABLES ANALYTICS.PUBLIC")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "kind", "comment"}))

	in := warehouse.NewIntrospector(&testhelpers.FakeDriver{}, zap.NewNop())
	snapshot, err := in.Introspect(context.Background(), db, "ANALYTICS", []string{"PUBLIC"})
	require.NoError(t, err)
	assert.Empty(t, snapshot.Tables)
}
