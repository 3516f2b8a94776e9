package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-saga/internal/storage"
)

var productRowColumns = []string{"id", "name", "description", "price", "active", "stock_quantity", "image", "created_at"}

func newMockRepository(t *testing.T) (*ProductRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewProductRepository(db), mock
}

func TestProductRepository(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("missing product is nil", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM products WHERE id = \\$1").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(productRowColumns))

		p, err := repo.GetByID(ctx, "nope")
		if err != nil || p != nil {
			t.Fatalf("expected nil product, got %+v %v", p, err)
		}
	})

	t.Run("update is guarded by the loaded stock", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM products WHERE id = \\$1").
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow("p1", "Camiseta", "", "30.00", true, 10, "", created))

		p, err := repo.GetByID(ctx, "p1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if err := p.DecrementStock(2); err != nil {
			t.Fatalf("decrement: %v", err)
		}
		repo.Update(p)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE products (.+) AND stock_quantity = \\$6").
			WithArgs("p1", "Camiseta", sqlmock.AnyArg(), true, 8, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		if err := repo.UnitOfWork().Commit(ctx); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("stale stock is a conflict", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM products WHERE id = ANY").
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow("p1", "Camiseta", "", "30.00", true, 10, "", created).
				AddRow("p2", "Caneca", "", "40.00", true, 5, "", created))

		products, err := repo.GetByIDs(ctx, []string{"p1", "p2"})
		if err != nil || len(products) != 2 {
			t.Fatalf("get: %v %v", products, err)
		}
		if !products[0].Price.Equal(decimal.NewFromInt(30)) || products[1].StockQuantity != 5 {
			t.Errorf("unexpected products: %+v", products)
		}
		repo.Update(&products[0])
		repo.Update(&products[1])

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE products").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = repo.UnitOfWork().Commit(ctx)
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("reservation lookup", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT EXISTS (.+) FROM stock_reservations WHERE order_id = \\$1").
			WithArgs("o1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		reserved, err := repo.HasReservation(ctx, "o1")
		if err != nil || !reserved {
			t.Fatalf("expected reservation, got %v %v", reserved, err)
		}
	})

	t.Run("duplicate reservation is a conflict", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		repo.AddReservation("o1", "c1")

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO stock_reservations (.+) ON CONFLICT \\(order_id\\) DO NOTHING").
			WithArgs("o1", "c1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		if err := repo.UnitOfWork().Commit(ctx); !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("query failure", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM products ORDER BY name").
			WillReturnError(errors.New("connection reset"))

		if _, err := repo.ListAll(ctx); err == nil {
			t.Fatal("expected error")
		}
	})
}
