package corepay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/agentpay/corepay/pkg/breaker"
	"github.com/agentpay/corepay/pkg/log"
	"github.com/agentpay/corepay/pkg/money"
	"github.com/agentpay/corepay/pkg/retry"
	"github.com/agentpay/corepay/pkg/storage"
)

// Orchestrator binds every component into the single ten-step pipeline of
// spec.md §4.10. It holds no state of its own beyond wiring: all durable
// state lives in the ledger, the guard chain's storage, the reservation
// registry, and the fund lock's storage, per spec.md §3's ownership rule.
type Orchestrator struct {
	ledger       *Ledger
	chain        *Chain
	lock         *FundLock
	reservations *ReservationRegistry
	custody      CustodyProvider
	router       *Router
	trust        TrustHook
	intents      *IntentService
	retry        *retry.Policy
	breakers     map[TransportMethod]*breaker.Breaker
	metrics      *Metrics
	log          log.Logger
}

// NewOrchestrator wires the pipeline. intents may be nil if the embedder
// never creates pre-authorized payments (a trust hook "hold" verdict then
// surfaces ErrConfiguration); call SetIntentService to bind it later, and
// SetExecutor on the IntentService itself to close the loop, since
// Orchestrator implements IntentExecutor.
func NewOrchestrator(ledger *Ledger, chain *Chain, lock *FundLock, reservations *ReservationRegistry, custody CustodyProvider, router *Router, trust TrustHook, store storage.Store, metrics *Metrics, lg log.Logger) *Orchestrator {
	breakers := map[TransportMethod]*breaker.Breaker{
		TransportTransfer:   breaker.New(string(TransportTransfer), breaker.DefaultConfig(), store, lg),
		TransportHTTP402:    breaker.New(string(TransportHTTP402), breaker.DefaultConfig(), store, lg),
		TransportCrossChain: breaker.New(string(TransportCrossChain), breaker.DefaultConfig(), store, lg),
	}
	return &Orchestrator{
		ledger:       ledger,
		chain:        chain,
		lock:         lock,
		reservations: reservations,
		custody:      custody,
		router:       router,
		trust:        trust,
		retry:        retry.New(adapterErrorClassifier),
		breakers:     breakers,
		metrics:      metrics,
		log:          lg.NewSystem("orchestrator"),
	}
}

// SetIntentService binds the intent service after construction, for callers
// that build the Orchestrator before the IntentService (the IntentService
// itself depends on Orchestrator as its IntentExecutor, so one side must be
// wired second).
func (o *Orchestrator) SetIntentService(intents *IntentService) {
	o.intents = intents
}

// adapterErrorClassifier treats network and timeout errors as transient,
// everything else (guard blocks, validation, protocol errors, insufficient
// balance) as a permanent failure not worth retrying.
func adapterErrorClassifier(err error) retry.Classification {
	switch KindOf(err) {
	case ErrNetwork, ErrTimeout:
		return retry.Transient
	default:
		return retry.NonRetryable
	}
}

// Pay runs the full ten-step pipeline for req.
func (o *Orchestrator) Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := ValidatePaymentRequest(req); err != nil {
		return PaymentResult{ErrorKind: ErrValidation, ErrorMessage: err.Error()}, err
	}

	entry, err := o.ledger.Record(req)
	if err != nil {
		return PaymentResult{}, err
	}

	if held, result, err := o.consultTrust(ctx, entry.ID, req); held {
		return result, err
	}

	var r *reservation
	var passed []string
	if req.SkipGuards {
		r = &reservation{}
	} else {
		in := GuardInput{WalletID: req.WalletID, WalletSetID: req.WalletSetID, Recipient: req.Recipient, Amount: req.Amount}
		reserved, p, err := o.chain.Reserve(ctx, in)
		if err != nil {
			o.ledger.UpdateStatus(entry.ID, StatusBlocked, "", map[string]string{"reason": err.Error()})
			o.recordGuardBlock(err)
			result := PaymentResult{LedgerEntryID: entry.ID, Status: StatusBlocked, ErrorKind: KindOf(err), ErrorMessage: err.Error()}
			o.recordAttempt(result)
			return result, err
		}
		r = reserved
		passed = p
	}
	o.ledger.SetGuardsPassed(entry.ID, passed)

	result, execErr := o.executeTail(ctx, req, r, entry.ID)
	result.LedgerEntryID = entry.ID
	result.GuardsPassed = passed
	o.recordAttempt(result)
	return result, execErr
}

// consultTrust invokes the trust hook if configured and req opts in. held
// reports whether the caller should return (result, err) immediately
// instead of continuing the pipeline (a block, a hold, or a hook error).
func (o *Orchestrator) consultTrust(ctx context.Context, ledgerEntryID string, req PaymentRequest) (held bool, result PaymentResult, err error) {
	if !shouldInvokeTrust(o.trust, req) {
		return false, PaymentResult{}, nil
	}

	verdict, reason, hookErr := o.trust.Evaluate(ctx, req)
	if hookErr != nil {
		o.failLedger(ledgerEntryID, "trust_hook_error")
		return true, PaymentResult{LedgerEntryID: ledgerEntryID, ErrorMessage: hookErr.Error()}, hookErr
	}

	switch verdict {
	case TrustBlock:
		o.ledger.UpdateStatus(ledgerEntryID, StatusBlocked, "", map[string]string{"reason": reason})
		blockErr := GuardBlocked("trust_hook", reason)
		return true, PaymentResult{LedgerEntryID: ledgerEntryID, Status: StatusBlocked, ErrorKind: ErrGuardBlocked, ErrorMessage: blockErr.Error()}, blockErr
	case TrustHold:
		if o.intents == nil {
			o.failLedger(ledgerEntryID, "no_intent_service_configured")
			cfgErr := Errorf(ErrConfiguration, "trust hook returned hold but no intent service is configured")
			return true, PaymentResult{LedgerEntryID: ledgerEntryID}, cfgErr
		}
		entry, getErr := o.ledger.Get(ledgerEntryID)
		if getErr != nil {
			return true, PaymentResult{LedgerEntryID: ledgerEntryID}, getErr
		}
		intent, createErr := o.intents.createForEntry(ctx, req, entry)
		if createErr != nil {
			o.failLedger(ledgerEntryID, "intent_create_failed")
			return true, PaymentResult{LedgerEntryID: ledgerEntryID}, createErr
		}
		return true, PaymentResult{LedgerEntryID: ledgerEntryID, Status: StatusPending, IntentID: intent.ID}, nil
	default:
		return false, PaymentResult{}, nil
	}
}

// ExecuteReserved implements IntentExecutor: it runs pipeline steps 4-10
// for an already-reserved, already-ledgered intent, restoring the guard
// reservation the intent's create step obtained instead of taking a fresh
// one.
func (o *Orchestrator) ExecuteReserved(ctx context.Context, intent PaymentIntent) (PaymentResult, error) {
	var tokens map[string]string
	if intent.GuardTokensJSON != "" {
		if err := json.Unmarshal([]byte(intent.GuardTokensJSON), &tokens); err != nil {
			return PaymentResult{}, err
		}
	}
	r := o.chain.Restore(tokens)

	req := PaymentRequest{
		WalletID:    intent.WalletID,
		WalletSetID: intent.WalletSetID,
		Recipient:   intent.Recipient,
		Amount:      intent.Amount,
	}
	if intent.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(intent.MetadataJSON), &req.Metadata)
	}

	result, execErr := o.executeTail(ctx, req, r, intent.LedgerEntryID)
	result.LedgerEntryID = intent.LedgerEntryID
	o.recordAttempt(result)
	return result, execErr
}

// executeTail runs pipeline steps 4 through 10 against an already-obtained
// guard reservation r and an already-recorded ledger entry, shared by Pay
// (fresh reservation) and ExecuteReserved (restored reservation).
func (o *Orchestrator) executeTail(ctx context.Context, req PaymentRequest, r *reservation, ledgerEntryID string) (PaymentResult, error) {
	token, err := o.lock.Acquire(ctx, req.WalletID)
	if err != nil {
		o.chain.Release(ctx, r)
		o.failLedger(ledgerEntryID, "wallet_busy")
		return PaymentResult{Status: StatusFailed, ErrorKind: KindOf(err), ErrorMessage: err.Error()}, err
	}

	available, err := o.availableBalance(ctx, req.WalletID)
	if err != nil {
		o.lock.ReleaseWithKey(ctx, req.WalletID, token)
		o.chain.Release(ctx, r)
		o.failLedger(ledgerEntryID, "balance_lookup_failed")
		return PaymentResult{Status: StatusFailed, ErrorKind: KindOf(err), ErrorMessage: err.Error()}, err
	}
	if available.LessThan(req.Amount) {
		o.lock.ReleaseWithKey(ctx, req.WalletID, token)
		o.chain.Release(ctx, r)
		o.failLedger(ledgerEntryID, "insufficient_balance")
		err := Errorf(ErrInsufficientFund, "wallet %s has %s available, needs %s", req.WalletID, available.String(), req.Amount.String())
		return PaymentResult{Status: StatusFailed, ErrorKind: ErrInsufficientFund, ErrorMessage: err.Error()}, err
	}

	adapter, err := o.router.Select(ctx, req)
	if err != nil {
		o.lock.ReleaseWithKey(ctx, req.WalletID, token)
		o.chain.Release(ctx, r)
		o.failLedger(ledgerEntryID, "routing_failed")
		return PaymentResult{Status: StatusFailed, ErrorKind: KindOf(err), ErrorMessage: err.Error()}, err
	}

	br := o.breakers[adapter.Name()]
	done, err := br.Allow(ctx)
	o.recordCircuitState(ctx, adapter.Name(), br)
	if err != nil {
		o.lock.ReleaseWithKey(ctx, req.WalletID, token)
		if req.Strategy == StrategyQueueBackground {
			if result, deferred := o.deferToIntent(ctx, req, r, ledgerEntryID); deferred {
				return result, nil
			}
		}
		o.chain.Release(ctx, r)
		o.failLedger(ledgerEntryID, "circuit_open")
		cbErr := Errorf(ErrCircuitOpen, "circuit for %s is open", adapter.Name())
		return PaymentResult{Status: StatusFailed, ErrorKind: ErrCircuitOpen, ErrorMessage: cbErr.Error()}, cbErr
	}

	var result PaymentResult
	attempts := 0
	run := func(ctx context.Context) error {
		attempts++
		if attempts > 1 && o.metrics != nil {
			o.metrics.RetryAttemptsTotal.WithLabelValues(string(adapter.Name())).Inc()
		}
		res, err := adapter.Execute(ctx, req)
		result = res
		if err != nil {
			return err
		}
		if !res.Success {
			return Errorf(ErrProtocol, "adapter %s reported failure", adapter.Name())
		}
		return nil
	}

	var execErr error
	if req.Strategy == StrategyFailFast {
		// fail-fast skips the retry policy entirely, per spec.md §4.7: a
		// single attempt, no backoff.
		execErr = run(ctx)
	} else {
		execErr = o.retry.Do(ctx, run)
	}
	done(execErr == nil)
	o.recordCircuitState(ctx, adapter.Name(), br)

	if execErr == nil {
		o.chain.Commit(ctx, r)
		result.Status = StatusCompleted
		result.Success = true
	} else {
		o.chain.Release(ctx, r)
		result.Status = StatusFailed
		result.Success = false
		result.ErrorKind = KindOf(execErr)
		result.ErrorMessage = execErr.Error()
	}
	result.Transport = adapter.Name()

	o.ledger.UpdateStatus(ledgerEntryID, result.Status, result.OnChainTxHash, nil)
	o.ledger.SetTransport(ledgerEntryID, adapter.Name(), result.ProviderTxID)

	o.lock.ReleaseWithKey(ctx, req.WalletID, token)

	return result, execErr
}

// deferToIntent converts a circuit-open admission failure into a deferred
// payment intent under the queue-background resilience strategy. Per
// spec.md §4.7/§7, circuit-open under queue-background is not an error to
// the caller: it materializes as a new intent the caller can later confirm
// once the downstream service recovers. It reuses the guard reservation r
// the caller already holds rather than releasing and re-reserving it,
// since a release/re-reserve round trip could lose the guard's budget
// window to a concurrent request. deferred reports whether the intent was
// created; when false the caller must fall back to a hard circuit-open
// failure (r is left untouched either way, for the caller to release).
func (o *Orchestrator) deferToIntent(ctx context.Context, req PaymentRequest, r *reservation, ledgerEntryID string) (result PaymentResult, deferred bool) {
	if o.intents == nil {
		return PaymentResult{}, false
	}
	entry, err := o.ledger.Get(ledgerEntryID)
	if err != nil {
		return PaymentResult{}, false
	}
	intent, err := o.intents.createFromReservation(ctx, req, entry, r)
	if err != nil {
		return PaymentResult{}, false
	}
	o.ledger.UpdateStatus(ledgerEntryID, StatusPending, "", map[string]string{"deferred_reason": "circuit_open"})
	return PaymentResult{LedgerEntryID: ledgerEntryID, Status: StatusPending, IntentID: intent.ID}, true
}

func (o *Orchestrator) availableBalance(ctx context.Context, walletID string) (money.Amount, error) {
	balance, err := o.custody.Balance(ctx, walletID)
	if err != nil {
		return money.Zero, err
	}
	reserved, err := o.reservations.TotalFor(ctx, walletID)
	if err != nil {
		return money.Zero, err
	}
	if o.metrics != nil {
		f, _ := reserved.Decimal().Float64()
		o.metrics.ReservationTotalGauge.WithLabelValues(walletID).Set(f)
	}
	return balance.Sub(reserved), nil
}

func (o *Orchestrator) failLedger(ledgerEntryID, reason string) {
	_ = o.ledger.UpdateStatus(ledgerEntryID, StatusFailed, "", map[string]string{"failure_reason": reason})
}

// Simulate runs the non-destructive subset of the pipeline, per spec.md
// §4.10: trust hook, a read-only guard check (not a reservation), the
// balance check, and the selected adapter's own Simulate. It never
// acquires the fund lock or mutates any counter.
func (o *Orchestrator) Simulate(ctx context.Context, req PaymentRequest) (SimulationResult, error) {
	if err := ValidatePaymentRequest(req); err != nil {
		return SimulationResult{}, err
	}

	if shouldInvokeTrust(o.trust, req) {
		verdict, reason, err := o.trust.Evaluate(ctx, req)
		if err != nil {
			return SimulationResult{}, err
		}
		if verdict == TrustBlock {
			return SimulationResult{WouldSucceed: false, Reason: reason}, nil
		}
	}

	var pass, fail []string
	if !req.SkipGuards {
		in := GuardInput{WalletID: req.WalletID, WalletSetID: req.WalletSetID, Recipient: req.Recipient, Amount: req.Amount}
		var reasons map[string]string
		pass, fail, reasons = o.chain.Check(ctx, in)
		if len(fail) > 0 {
			return SimulationResult{WouldSucceed: false, GuardsPass: pass, GuardsFail: fail, Reason: reasons[fail[0]]}, nil
		}
	}

	available, err := o.availableBalance(ctx, req.WalletID)
	if err != nil {
		return SimulationResult{}, err
	}
	if available.LessThan(req.Amount) {
		return SimulationResult{WouldSucceed: false, GuardsPass: pass, Reason: "insufficient_balance"}, nil
	}

	adapter, err := o.router.Select(ctx, req)
	if err != nil {
		return SimulationResult{WouldSucceed: false, GuardsPass: pass, Reason: err.Error()}, nil
	}

	simResult, err := adapter.Simulate(ctx, req)
	if err != nil {
		return SimulationResult{}, err
	}
	simResult.GuardsPass = pass
	simResult.Route = adapter.Name()
	return simResult, nil
}

// BatchPay runs each request through Pay independently, up to concurrency
// at a time, per spec.md §4.10. There is no cross-request atomicity: one
// request's failure never affects another's outcome.
func (o *Orchestrator) BatchPay(ctx context.Context, reqs []PaymentRequest, concurrency int) BatchResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]PaymentResult, len(reqs))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, req PaymentRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			result, _ := o.Pay(ctx, req)
			results[i] = result
		}(i, req)
	}
	wg.Wait()

	return BatchResult{Results: results}
}

func (o *Orchestrator) recordAttempt(result PaymentResult) {
	if o.metrics == nil {
		return
	}
	o.metrics.PaymentAttemptsTotal.WithLabelValues(string(result.Transport), string(result.Status)).Inc()
	if !result.Success && result.ErrorKind != "" {
		o.metrics.PaymentAttemptsFail.WithLabelValues(string(result.ErrorKind)).Inc()
	}
}

func (o *Orchestrator) recordCircuitState(ctx context.Context, name TransportMethod, br *breaker.Breaker) {
	if o.metrics == nil {
		return
	}
	state, err := br.Current(ctx)
	if err != nil {
		return
	}
	o.metrics.CircuitStateGauge.WithLabelValues(string(name)).Set(circuitStateValue(string(state)))
}

func (o *Orchestrator) recordGuardBlock(err error) {
	if o.metrics == nil {
		return
	}
	var ce *CoreError
	if errors.As(err, &ce) && ce.Guard != "" {
		o.metrics.GuardBlockedTotal.WithLabelValues(ce.Guard).Inc()
	}
}
