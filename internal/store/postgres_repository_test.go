package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/proshoot/studio-service/internal/domain"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

// A first grant races with nothing to lock: FOR UPDATE on the missing row
// returns no rows, so the repository must insert with ON CONFLICT DO NOTHING
// and re-lock whichever row survived. The re-lock here reports a balance
// already written by a concurrent winner, and the grant lands on top of it.
func TestMutateCredits_FirstGrantProvisionsAndRelocks(t *testing.T) {
	repo, mock := newMockRepo(t)

	userID := uuid.New()
	ledgerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, professional FROM credits WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO credits .*ON CONFLICT DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT id, professional FROM credits WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "professional"}).AddRow(ledgerID, int64(40)))
	mock.ExpectExec(`UPDATE credits SET professional = \$1`).
		WithArgs(int64(100), ledgerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), ledgerID, int64(60), "professional", "purchase", "PERSONAL", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := repo.MutateCredits(context.Background(), domain.CreditMutation{
		Account: domain.PersonalAccount(userID),
		Bucket:  domain.BucketProfessional,
		Delta:   60,
		Reason:  "purchase",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Remaining != 100 {
		t.Fatalf("expected grant on top of concurrent balance 40, got remaining %d", result.Remaining)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMutateCredits_DeductMissingLedger(t *testing.T) {
	repo, mock := newMockRepo(t)

	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, balance FROM credits WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.MutateCredits(context.Background(), domain.CreditMutation{
		Account: domain.PersonalAccount(userID),
		Bucket:  domain.BucketBalance,
		Delta:   -1,
		Reason:  "studio_processing",
	})
	if !errors.Is(err, ErrLedgerNotFound) {
		t.Fatalf("expected ErrLedgerNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// First transfer to a member without a ledger follows the same provisioning
// pattern: ON CONFLICT insert, then re-lock before crediting.
func TestTransferTeamCredits_ProvisionsMemberLedger(t *testing.T) {
	repo, mock := newMockRepo(t)

	orgID := uuid.New()
	memberID := uuid.New()
	orgLedgerID := uuid.New()
	memberLedgerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, team FROM credits WHERE organization_id = \$1 FOR UPDATE`).
		WithArgs(orgID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "team"}).AddRow(orgLedgerID, int64(50)))
	mock.ExpectQuery(`SELECT id, team FROM credits WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(memberID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO credits .*ON CONFLICT DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), memberID).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT id, team FROM credits WHERE user_id = \$1 FOR UPDATE`).
		WithArgs(memberID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "team"}).AddRow(memberLedgerID, int64(0)))
	mock.ExpectExec(`UPDATE credits SET team = \$1`).
		WithArgs(int64(30), orgLedgerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE credits SET team = \$1`).
		WithArgs(int64(20), memberLedgerID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), orgLedgerID, int64(-20), "team", "team_credit_transfer_out", "ORGANIZATION").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WithArgs(pgxmock.AnyArg(), memberLedgerID, int64(20), "team", "team_credit_transfer_in", "PERSONAL").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.TransferTeamCredits(context.Background(), domain.TeamCreditTransfer{
		OrganizationID: orgID,
		MemberUserID:   memberID,
		Bucket:         domain.BucketTeam,
		Amount:         20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
