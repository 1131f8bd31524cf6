package app

import (
	"log/slog"

	"github.com/odyssey-erp/cashdesk/internal/audit"
	"github.com/odyssey-erp/cashdesk/internal/balance"
	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/observability"
	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

// Services holds the wired domain services shared by the binaries.
type Services struct {
	Balances  *balance.Calculator
	Dividends *dividend.Service
	Transfers *transfer.Service
	Inkasso   *inkasso.Service
}

// Notifiers bundles the post-commit event ports. Any field may be nil.
type Notifiers struct {
	Dividend dividend.Notifier
	Transfer transfer.Notifier
	Inkasso  inkasso.Notifier
}

// NewServices wires the calculator and workflows against uow. metrics may be nil.
func NewServices(uow db.UnitOfWork, logger *slog.Logger, metrics *observability.LedgerMetrics, notifiers Notifiers) *Services {
	txs := ledger.NewRepository()
	trail := audit.NewPGTrail()
	dividends := dividend.NewPGRepository()
	transfers := transfer.NewPGRepository()

	opts := []balance.Option{balance.WithSources(dividend.NewSource(dividends), transfer.NewSource(transfers))}
	if metrics != nil {
		opts = append(opts, balance.WithIntegrityRecorder(metrics))
	}
	calc := balance.NewCalculator(uow, txs, logger, opts...)

	divSvc := dividend.NewService(uow, dividends, calc, dividend.PGExpenseTypes{}, trail, logger)
	trSvc := transfer.NewService(uow, transfers, calc, trail, logger)
	inkSvc := inkasso.NewService(uow, txs, inkasso.NewPGRepository(), trail, logger)

	if metrics != nil {
		divSvc.SetObserver(metrics)
		trSvc.SetObserver(metrics)
		inkSvc.SetObserver(metrics)
	}
	if notifiers.Dividend != nil {
		divSvc.SetNotifier(notifiers.Dividend)
	}
	if notifiers.Transfer != nil {
		trSvc.SetNotifier(notifiers.Transfer)
	}
	if notifiers.Inkasso != nil {
		inkSvc.SetNotifier(notifiers.Inkasso)
	}
	return &Services{Balances: calc, Dividends: divSvc, Transfers: trSvc, Inkasso: inkSvc}
}
