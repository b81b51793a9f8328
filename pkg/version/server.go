package version

import "fmt"

// MinTransactionServer is the first MongoDB release with multi-document transactions on
// replica sets.
var MinTransactionServer = SemVer{Major: 4}

// SupportsTransactions reports whether a MongoDB server version can run the engine's
// transactions. Topology is not checked: a standalone server never can.
func SupportsTransactions(server string) (bool, error) {
	v, err := Parse(server)
	if err != nil {
		return false, fmt.Errorf("server version: %w", err)
	}
	return v.AtLeast(MinTransactionServer), nil
}
