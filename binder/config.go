package binder

const (
	defaultTable = "filter"
	defaultChain = "ip-setkeeper-chain"
)

type config struct {
	table string
	chain string
}

type Option func(c *config)

// WithTable sets the iptables table rules are written to, default "filter".
func WithTable(t string) Option {
	return func(c *config) {
		c.table = t
	}
}

// WithChain sets the name of the chain holding the match rules.
func WithChain(ch string) Option {
	return func(c *config) {
		c.chain = ch
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{
		table: defaultTable,
		chain: defaultChain,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
