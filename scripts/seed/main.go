package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	organizationID = 1
	costCenterID   = 10
	approverID     = 2
	requesterID    = 3
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.MigrateOnStart = true
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	services, err := app.OpenServices(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		log.Fatalf("open services: %v", err)
	}
	defer func() { _ = services.Close() }()

	fmt.Println("→ Seeding chart of accounts...")
	cash, err := seedAccounts(ctx, services.Accounts)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding ledger entries...")
	if err := seedEntries(ctx, services.Ledger, cash, cfg.LedgerCurrency); err != nil {
		log.Fatalf("seed entries: %v", err)
	}

	fmt.Println("→ Seeding procurement...")
	if err := seedProcurement(ctx, services.Procurement); err != nil {
		log.Fatalf("seed procurement: %v", err)
	}

	logger.Info("seed complete", slog.String("driver", cfg.DBDriver))
}

func seedAccounts(ctx context.Context, svc *accounts.Service) (int64, error) {
	assets, err := svc.Create(ctx, accounts.CreateInput{
		OrganizationID: organizationID,
		Code:           "1",
		Name:           "Assets",
		Type:           accounts.AccountTypeDebit,
	})
	if errors.Is(err, accounts.ErrDuplicateCode) {
		return existing(ctx, svc, "1.1")
	}
	if err != nil {
		return 0, err
	}
	cash, err := svc.Create(ctx, accounts.CreateInput{
		OrganizationID: organizationID,
		Code:           "1.1",
		Name:           "Cash",
		Type:           accounts.AccountTypeDebit,
		Amount:         decimal.NewFromInt(2500),
		ParentID:       &assets.ID,
	})
	if err != nil {
		return 0, err
	}
	if _, err := svc.Create(ctx, accounts.CreateInput{
		OrganizationID: organizationID,
		Code:           "2",
		Name:           "Liabilities",
		Type:           accounts.AccountTypeCredit,
	}); err != nil {
		return 0, err
	}
	return cash.ID, nil
}

func existing(ctx context.Context, svc *accounts.Service, code string) (int64, error) {
	list, err := svc.List(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	for _, a := range list {
		if a.Code == code {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("account %s missing", code)
}

func seedEntries(ctx context.Context, svc *accounting.Service, accountID int64, currency string) error {
	start := time.Date(time.Now().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	movements := []struct {
		offsetDays int
		voucher    string
		debit      int64
		credit     int64
		opening    bool
	}{
		{0, "Journal Entry", 2500, 0, true},
		{14, "Purchase Invoice", 0, 400, false},
		{31, "Payment Entry", 1200, 0, false},
		{45, "Purchase Invoice", 0, 350, false},
	}
	for _, m := range movements {
		_, err := svc.RecordEntry(ctx, accounting.RecordEntryInput{
			ChartAccountID: accountID,
			OrganizationID: organizationID,
			PostingDate:    start.AddDate(0, 0, m.offsetDays),
			VoucherType:    m.voucher,
			Currency:       currency,
			Debit:          decimal.NewFromInt(m.debit),
			Credit:         decimal.NewFromInt(m.credit),
			IsOpening:      m.opening,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func seedProcurement(ctx context.Context, svc *procurement.Service) error {
	err := svc.AssignApprover(ctx, approverID, shared.CostCenterRef{ID: costCenterID})
	if err != nil && !errors.Is(err, shared.ErrAssignmentExists) {
		return err
	}
	_, err = svc.CreateRequisition(ctx, procurement.CreateRequisitionInput{
		OrganizationID: organizationID,
		CostCenterID:   costCenterID,
		RequestedBy:    requesterID,
		Note:           "Office supplies",
		Lines: []procurement.LineInput{
			{ProductID: 100, Qty: decimal.NewFromInt(12)},
			{ProductID: 101, Qty: decimal.RequireFromString("2.5")},
		},
	})
	return err
}
