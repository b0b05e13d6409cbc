package ipset

type SetType string
type OutputType string

const (
	SetTypeHashNet SetType = "hash:net"
)

const (
	OutputTypeXml OutputType = "xml"
)

const (
	defaultBinary = "ipset"
	familyInet    = "inet"
)

var (
	notExistHints = []string{"does not exist", "The set with the given name"}
)
