package cart

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestFindSelectedLocksLinesUntilDelete(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	customerID, productID, lineID := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "cart_lines" WHERE (.*)customer_id = \$1 AND id IN \(\$2\)(.*)ORDER BY (.+) FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "product_id", "quantity", "unit_price_snapshot"}).
			AddRow(lineID.String(), customerID.String(), productID.String(), "2", "10.00"))
	mock.ExpectExec(`DELETE FROM "cart_lines" WHERE (.*)customer_id = \$1 AND id IN \(\$2\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err = conn.Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(conn).WithTx(tx)
		lines, err := repo.FindSelected(ctx, customerID, []uuid.UUID{lineID})
		if err != nil {
			return err
		}
		require.Len(t, lines, 1)
		require.Equal(t, "2", lines[0].Quantity.String())

		deleted, err := repo.DeleteLines(ctx, customerID, []uuid.UUID{lineID})
		require.EqualValues(t, 1, deleted)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
