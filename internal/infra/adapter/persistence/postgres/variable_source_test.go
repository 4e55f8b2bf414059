package postgres_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"msghub/internal/domain/entity"
	"msghub/internal/infra/adapter/persistence/postgres"
)

func TestTemplateVariableSource_Variables(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	src := postgres.NewTemplateVariableSource(db)
	contact := &entity.CustomerContact{CustomerID: 42, Identifier: "13812345678"}
	vars, err := src.Variables(context.Background(), &entity.MessageTemplate{Code: "daily_report"}, contact)
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if vars["identifier"] != "13812345678" {
		t.Errorf("identifier = %v, want 13812345678", vars["identifier"])
	}
	if vars["recent_message_count"] != int64(3) {
		t.Errorf("recent_message_count = %v, want 3", vars["recent_message_count"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
