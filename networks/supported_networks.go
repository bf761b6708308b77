package networks

import (
	"fmt"
	"os"
)

// Insert more Network implementation here to support
// more chains
var supportedNetworks = []Network{
	EthereumMainnet,
	BSCMainnet,
	Matic,
}

var ErrNetworkNotFound = fmt.Errorf("network not found")

var (
	networksByName map[string]Network
	networksByID   map[int64]Network
)

func init() {
	networksByName = map[string]Network{}
	networksByID = map[int64]Network{}
	for _, n := range supportedNetworks {
		if _, found := networksByName[n.GetName()]; found {
			panic(fmt.Errorf("network with name '%s' already exists", n.GetName()))
		}
		if _, found := networksByID[n.GetChainID()]; found {
			panic(fmt.Errorf("network with chain id %d already exists", n.GetChainID()))
		}
		networksByName[n.GetName()] = n
		networksByID[n.GetChainID()] = n
	}
}

func GetSupportedNetworks() []Network {
	return supportedNetworks
}

func GetNetwork(name string) (Network, error) {
	res, found := networksByName[name]
	if !found {
		return nil, fmt.Errorf("network name '%s': %w", name, ErrNetworkNotFound)
	}
	return res, nil
}

func GetNetworkByChainID(id int64) (Network, error) {
	res, found := networksByID[id]
	if !found {
		return nil, fmt.Errorf("chain id %d: %w", id, ErrNetworkNotFound)
	}
	return res, nil
}

// GetNodes returns the node name to url map for the network, preferring a
// user provided node from the network's env var over the default ones.
func GetNodes(n Network) map[string]string {
	if custom := os.Getenv(n.GetNodeVariableName()); custom != "" {
		return map[string]string{
			fmt.Sprintf("%s-custom", n.GetName()): custom,
		}
	}
	return n.GetDefaultNodes()
}
