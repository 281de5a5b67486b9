// Package transfer assembles the two correlated legs of a cross-account transfer.
package transfer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

// Builder builds one transfer. Its state is cleared after every Build,
// successful or not; it is not safe for concurrent use.
type Builder struct {
	lookup domain.AccountLookup

	sender     *models.FinancialTransaction
	recipient  *models.FinancialTransaction
	transferID string
}

// NewBuilder creates a builder resolving counterpart accounts through lookup.
func NewBuilder(lookup domain.AccountLookup) *Builder {
	return &Builder{lookup: lookup}
}

// WithSender sets the outgoing leg.
func (b *Builder) WithSender(tx models.FinancialTransaction) *Builder {
	b.sender = &tx
	return b
}

// WithRecipient sets the incoming leg.
func (b *Builder) WithRecipient(tx models.FinancialTransaction) *Builder {
	b.recipient = &tx
	return b
}

// WithTransferID fixes the shared key; otherwise a new one is generated.
func (b *Builder) WithTransferID(id string) *Builder {
	b.transferID = id
	return b
}

// Build returns the transfer with legs [sender, recipient]. Both legs get the
// shared key, each other's account as contractor and a synthesized comment.
func (b *Builder) Build(ctx context.Context) (models.CrossAccountsTransferOperation, error) {
	defer b.reset()

	var problems []string
	if b.sender == nil {
		problems = append(problems, "sender operation is required")
	}
	if b.recipient == nil {
		problems = append(problems, "recipient operation is required")
	}
	if len(problems) > 0 {
		return models.CrossAccountsTransferOperation{}, &domain.ValidationError{
			Operation: "build transfer",
			Problems:  problems,
		}
	}

	key := b.transferID
	if key == "" {
		key = uuid.NewString()
	}

	sender := *b.sender
	recipient := *b.recipient

	senderInfo, recipientInfo := b.describe(ctx, sender.PaymentAccountID, recipient.PaymentAccountID)

	sender.Key = key
	sender.ContractorID = recipient.PaymentAccountID
	sender.TransactionType = models.TransactionTypeTransfer
	sender.Comment = comment("Transfer to", recipientInfo.Description, sender.Comment)

	recipient.Key = key
	recipient.ContractorID = sender.PaymentAccountID
	recipient.TransactionType = models.TransactionTypeTransfer
	recipient.Comment = comment("Transfer from", senderInfo.Description, recipient.Comment)

	return models.CrossAccountsTransferOperation{
		Key:               key,
		PaymentOperations: []models.FinancialTransaction{sender, recipient},
	}, nil
}

// describe looks both accounts up concurrently. A failed lookup yields an empty AccountInfo.
func (b *Builder) describe(ctx context.Context, senderID, recipientID string) (models.AccountInfo, models.AccountInfo) {
	var senderInfo, recipientInfo models.AccountInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		senderInfo = b.get(gctx, senderID)
		return nil
	})
	g.Go(func() error {
		recipientInfo = b.get(gctx, recipientID)
		return nil
	})
	_ = g.Wait()

	return senderInfo, recipientInfo
}

func (b *Builder) get(ctx context.Context, accountID string) models.AccountInfo {
	info, err := b.lookup.GetByID(ctx, accountID)
	if err != nil {
		log.Printf("Account lookup failed, using blank description: accountId=%s, error=%v", accountID, err)
		return models.AccountInfo{}
	}
	return info
}

func (b *Builder) reset() {
	b.sender = nil
	b.recipient = nil
	b.transferID = ""
}

func comment(prefix, description, own string) string {
	text := fmt.Sprintf("%s %s", prefix, description)
	if own != "" {
		text = fmt.Sprintf("%s: %s", text, own)
	}
	return text
}
