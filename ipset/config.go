package ipset

type config struct {
	params []string
}

func (c *config) addParam(ps ...string) {
	c.params = append(c.params, ps...)
}

type CmdOption func(c *config)

func WithExist() CmdOption {
	return func(c *config) {
		c.addParam("-exist")
	}
}

// -exist | -output { plain | save | xml } | -name
func WithOutput(typ OutputType) CmdOption {
	return func(c *config) {
		c.addParam("-output", string(typ))
	}
}

func WithName() CmdOption {
	return func(c *config) {
		c.addParam("-name")
	}
}

func applyOpts(opts ...CmdOption) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
