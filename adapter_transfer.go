package corepay

import "context"

// TransferAdapter delegates a direct, same-network custody transfer, per
// spec.md §4.8. Selection is by wallet network tag and recipient shape,
// not by destination_network (which, if present, must already equal the
// wallet's network by the time the router reaches this adapter).
type TransferAdapter struct {
	custody CustodyProvider
}

// NewTransferAdapter builds the adapter over custody.
func NewTransferAdapter(custody CustodyProvider) *TransferAdapter {
	return &TransferAdapter{custody: custody}
}

func (a *TransferAdapter) Name() TransportMethod { return TransportTransfer }

func (a *TransferAdapter) CanHandle(ctx context.Context, req PaymentRequest, walletNetwork NetworkTag) bool {
	kind := ClassifyRecipient(req.Recipient)
	switch kind {
	case RecipientEVMAddress:
		return walletNetwork.IsEVM()
	case RecipientBase58:
		return walletNetwork == NetworkSolana
	default:
		return false
	}
}

func (a *TransferAdapter) Simulate(ctx context.Context, req PaymentRequest) (SimulationResult, error) {
	ok, reason, err := a.custody.SimulateSend(ctx, req.WalletID, req.Recipient, req.Amount, req.DestinationNetwork, req.IdempotencyKey)
	if err != nil {
		return SimulationResult{}, err
	}
	return SimulationResult{WouldSucceed: ok, Route: a.Name(), Reason: reason}, nil
}

func (a *TransferAdapter) Execute(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	providerTxID, txHash, err := a.custody.Send(ctx, req.WalletID, req.Recipient, req.Amount, req.DestinationNetwork, req.IdempotencyKey)
	if err != nil {
		return PaymentResult{
			Success:      false,
			Status:       StatusFailed,
			Transport:    a.Name(),
			ErrorKind:    ErrNetwork,
			ErrorMessage: err.Error(),
		}, err
	}
	return PaymentResult{
		Success:       true,
		Status:        StatusCompleted,
		Transport:     a.Name(),
		ProviderTxID:  providerTxID,
		OnChainTxHash: txHash,
		Amount:        req.Amount,
		Recipient:     req.Recipient,
	}, nil
}
