package transaction

// Observer receives per-transaction outcomes of a batch. Under Parallel it is
// called from several goroutines at once.
type Observer interface {
	OnSuccess(result Result, expiryHeight uint64)
	OnFailure(failure Failure, expiryHeight uint64)
}

// NopObserver ignores every outcome.
type NopObserver struct{}

func (NopObserver) OnSuccess(Result, uint64)  {}
func (NopObserver) OnFailure(Failure, uint64) {}

// ObserverFuncs adapts plain functions; nil fields are skipped.
type ObserverFuncs struct {
	Success func(result Result, expiryHeight uint64)
	Failure func(failure Failure, expiryHeight uint64)
}

func (o ObserverFuncs) OnSuccess(result Result, expiryHeight uint64) {
	if o.Success != nil {
		o.Success(result, expiryHeight)
	}
}

func (o ObserverFuncs) OnFailure(failure Failure, expiryHeight uint64) {
	if o.Failure != nil {
		o.Failure(failure, expiryHeight)
	}
}

// MultiObserver fans every outcome out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnSuccess(result Result, expiryHeight uint64) {
	for _, o := range m {
		if o != nil {
			o.OnSuccess(result, expiryHeight)
		}
	}
}

func (m MultiObserver) OnFailure(failure Failure, expiryHeight uint64) {
	for _, o := range m {
		if o != nil {
			o.OnFailure(failure, expiryHeight)
		}
	}
}
