package registry

const (
	defaultCommandPrefix    = "ipset"
	defaultPersistencePath  = "/var/lib/ip-setkeeper/ipsets.snapshot"
	defaultMaxSets          = 1024
	defaultMaxMembersPerSet = 65536
	// MaxSetNameLen matches the kernel ipset name limit minus the trailing NUL.
	MaxSetNameLen = 63
)

type config struct {
	commandPrefix    string
	persistencePath  string
	maxSets          int
	maxMembersPerSet int
}

// Config is the read-only view of the registry configuration.
type Config struct {
	CommandPrefix    string
	PersistencePath  string
	MaxSets          int
	MaxMembersPerSet int
}

type Option func(c *config)

// WithCommandPrefix sets the command line used to reach ipset, e.g. "sudo ipset".
func WithCommandPrefix(p string) Option {
	return func(c *config) {
		c.commandPrefix = p
	}
}

func WithPersistencePath(p string) Option {
	return func(c *config) {
		c.persistencePath = p
	}
}

func WithMaxSets(n int) Option {
	return func(c *config) {
		c.maxSets = n
	}
}

func WithMaxMembersPerSet(n int) Option {
	return func(c *config) {
		c.maxMembersPerSet = n
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{
		commandPrefix:    defaultCommandPrefix,
		persistencePath:  defaultPersistencePath,
		maxSets:          defaultMaxSets,
		maxMembersPerSet: defaultMaxMembersPerSet,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type setConfig struct {
	refCount int
}

type SetOption func(c *setConfig)

// WithRefCount sets the initial reference count of a new set.
func WithRefCount(n int) SetOption {
	return func(c *setConfig) {
		c.refCount = n
	}
}
