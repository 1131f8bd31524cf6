package cashdeskhttp

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/cashdesk/internal/dividend"
	"github.com/odyssey-erp/cashdesk/internal/inkasso"
	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/internal/platform/httpx"
	"github.com/odyssey-erp/cashdesk/internal/shared"
	"github.com/odyssey-erp/cashdesk/internal/transfer"
)

const maxBodyBytes = 64 << 10

type createDividendBody struct {
	Subject       string `json:"subject" validate:"required,max=200"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	ExpenseTypeID int64  `json:"expense_type_id" validate:"gt=0"`
	Reason        string `json:"reason" validate:"max=2000"`
}

func (b createDividendBody) input(branchID int64) dividend.CreateInput {
	return dividend.CreateInput{
		BranchID:      branchID,
		Subject:       strings.TrimSpace(b.Subject),
		Amount:        money.New(b.Amount),
		ExpenseTypeID: b.ExpenseTypeID,
		Reason:        strings.TrimSpace(b.Reason),
	}
}

type reviewBody struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Note   string `json:"note" validate:"max=2000"`
}

func (b reviewBody) input(branchID int64, id uuid.UUID) dividend.ReviewInput {
	return dividend.ReviewInput{
		BranchID:  branchID,
		RequestID: id,
		Action:    dividend.Action(b.Action),
		Note:      strings.TrimSpace(b.Note),
	}
}

type createTransferBody struct {
	DividendAmount  int64  `json:"dividend_amount" validate:"gte=0"`
	MarketingAmount int64  `json:"marketing_amount" validate:"gte=0"`
	Notes           string `json:"notes" validate:"max=2000"`
}

func (b createTransferBody) input(branchID int64) transfer.CreateInput {
	return transfer.CreateInput{
		BranchID:        branchID,
		DividendAmount:  money.New(b.DividendAmount),
		MarketingAmount: money.New(b.MarketingAmount),
		Notes:           strings.TrimSpace(b.Notes),
	}
}

type createDeliveryBody struct {
	TransactionIDs []int64 `json:"transaction_ids" validate:"required,min=1,max=500,dive,gt=0"`
	// DeliveredDate is a calendar date (YYYY-MM-DD); empty means today.
	DeliveredDate string `json:"delivered_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string `json:"notes" validate:"max=2000"`
}

func (b createDeliveryBody) input(branchID int64) (inkasso.CreateInput, error) {
	in := inkasso.CreateInput{
		BranchID:       branchID,
		TransactionIDs: b.TransactionIDs,
		Notes:          strings.TrimSpace(b.Notes),
	}
	if b.DeliveredDate != "" {
		d, err := time.Parse(time.DateOnly, b.DeliveredDate)
		if err != nil {
			return inkasso.CreateInput{}, fmt.Errorf("%w: delivered_date must be YYYY-MM-DD", shared.ErrValidation)
		}
		in.DeliveredDate = d
	}
	return in, nil
}

type transactionView struct {
	ID          int64         `json:"id"`
	Type        ledger.TxType `json:"type"`
	Amount      money.Amount  `json:"amount"`
	OccurredAt  time.Time     `json:"occurred_at"`
	Description string        `json:"description,omitempty"`
	Delivered   bool          `json:"delivered"`
}

func transactionViews(txs []ledger.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionView{
			ID:          t.ID,
			Type:        t.Type,
			Amount:      t.Amount,
			OccurredAt:  t.OccurredAt,
			Description: t.Description,
			Delivered:   t.Delivered,
		})
	}
	return out
}

type deliveryDetailView struct {
	inkasso.Delivery
	Transactions []transactionView `json:"transactions"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body and validates it. Failures carry shared.ErrValidation.
func (h *Handler) decode(r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrValidation, err)
	}
	if err := h.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must not be negative"
	case "max":
		return field + " exceeds " + fe.Param()
	case "min":
		return field + " needs at least " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "datetime":
		return field + " must be YYYY-MM-DD"
	default:
		return field + " failed " + fe.Tag()
	}
}
