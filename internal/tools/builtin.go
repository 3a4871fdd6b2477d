package tools

import "time"

// Deps are the services the built-in tools read from.
type Deps struct {
	Yield        YieldSource
	Quoter       Quoter
	Explainer    Explainer
	VaultProgram string
	Now          func() time.Time
}

// NewDefaultRegistry registers yield_agent.run, swap_agent.optimized and tx_explain.deep.
func NewDefaultRegistry(d Deps) *Registry {
	if d.Now == nil {
		d.Now = time.Now
	}
	r := NewRegistry()
	r.MustRegister(
		YieldAgent(d.Yield, d.Now),
		SwapAgent(d.Quoter),
		TxExplain(d.Explainer, DefaultProgramLabels(d.VaultProgram)),
	)
	return r
}
