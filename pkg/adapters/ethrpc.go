package adapters

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cowsolver/pkg/model"
)

// EthRPCClient talks JSON-RPC to one node per chain.
type EthRPCClient struct {
	clients map[model.ChainID]*rpc.Client
}

// DialEthRPC connects to every configured endpoint. Already opened clients
// are closed if a later dial fails.
func DialEthRPC(ctx context.Context, endpoints map[model.ChainID]string) (*EthRPCClient, error) {
	c := &EthRPCClient{clients: make(map[model.ChainID]*rpc.Client, len(endpoints))}
	for chain, url := range endpoints {
		cl, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.Close()
			return nil, model.NewAdapterError("rpc:"+chain.String(), "dial", err)
		}
		c.clients[chain] = cl
	}
	return c, nil
}

func (c *EthRPCClient) client(chain model.ChainID) (*rpc.Client, error) {
	cl, ok := c.clients[chain]
	if !ok {
		return nil, model.NewAdapterError("rpc:"+chain.String(), "lookup", errors.New("no endpoint configured"))
	}
	return cl, nil
}

// GasPrice returns the node's suggested gas price in wei.
func (c *EthRPCClient) GasPrice(ctx context.Context, chain model.ChainID) (decimal.Decimal, error) {
	cl, err := c.client(chain)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := ethclient.NewClient(cl).SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, model.NewAdapterError("rpc:"+chain.String(), "eth_gasPrice", err)
	}
	return decimal.NewFromBigInt(wei, 0), nil
}

// SubmitTransaction broadcasts an already signed raw transaction.
func (c *EthRPCClient) SubmitTransaction(ctx context.Context, chain model.ChainID, payload []byte) error {
	cl, err := c.client(chain)
	if err != nil {
		return err
	}
	if err := cl.CallContext(ctx, nil, "eth_sendRawTransaction", hexutil.Bytes(payload)); err != nil {
		return model.NewAdapterError("rpc:"+chain.String(), "eth_sendRawTransaction", err)
	}
	return nil
}

func (c *EthRPCClient) Close() {
	for _, cl := range c.clients {
		cl.Close()
	}
}

var _ ChainClient = (*EthRPCClient)(nil)
