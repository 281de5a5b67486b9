package models

// CrossAccountsTransferOperation holds the two correlated legs of a transfer.
// PaymentOperations is always [sender, recipient]; both legs share Key.
type CrossAccountsTransferOperation struct {
	Key               string                 `json:"key"`
	PaymentOperations []FinancialTransaction `json:"paymentOperations"`
}

// Sender returns the outgoing leg.
func (o CrossAccountsTransferOperation) Sender() FinancialTransaction {
	return o.PaymentOperations[0]
}

// Recipient returns the incoming leg.
func (o CrossAccountsTransferOperation) Recipient() FinancialTransaction {
	return o.PaymentOperations[1]
}
