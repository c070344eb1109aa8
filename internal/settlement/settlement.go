// Package settlement reads USDC balances and submits redemption
// transactions against the settlement chain via JSON-RPC. It is the one
// place go-ethereum is exercised; every call is wrapped in the same
// breaker.Endpoint pattern used by the market gateway and price feed, since
// a chain RPC endpoint fails the same way any other external dependency
// does. Grounded on pkg/exchange/hyperliquid client's
// functional-options constructor shape, adapted from an exchange REST
// client to an ethclient.Client.
package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"binaryengine/internal/breaker"
)

// usdcDecimals is fixed for the USDC ERC-20 contract on every chain this
// engine settles against.
const usdcDecimals = 6

// transferMethodID is the first 4 bytes of keccak256("transfer(address,uint256)"),
// used to build a raw ERC-20 transfer call without pulling in a full ABI
// binding for one method.
var transferMethodID = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

var balanceOfMethodID = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// Client wraps an ethclient.Client bound to one settlement chain and one
// USDC contract address.
type Client struct {
	rpc          *ethclient.Client
	usdcContract common.Address
	privateKey   string // hex-encoded; never logged
	chainID      *big.Int

	balanceCheck *breaker.Endpoint
	submitCheck  *breaker.Endpoint
}

func New(rpcURL string, usdcContract common.Address, privateKeyHex string, chainID int64, breakerCfg breaker.Settings) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("settlement: dial rpc: %w", err)
	}
	return &Client{
		rpc:          rpc,
		usdcContract: usdcContract,
		privateKey:   privateKeyHex,
		chainID:      big.NewInt(chainID),
		balanceCheck: breaker.NewEndpoint("settlement.balance", breakerCfg),
		submitCheck:  breaker.NewEndpoint("settlement.redeem", breakerCfg),
	}, nil
}

// USDCBalance returns the wallet's current USDC balance in dollars.
func (c *Client) USDCBalance(ctx context.Context, wallet common.Address) (float64, error) {
	var balance float64
	err := c.balanceCheck.Do(ctx, func(ctx context.Context) error {
		data := balanceOfCallData(wallet)
		msg := ethereum.CallMsg{To: &c.usdcContract, Data: data}
		result, callErr := c.rpc.CallContract(ctx, msg, nil)
		if callErr != nil {
			return fmt.Errorf("settlement: call balanceOf: %w", callErr)
		}
		raw := new(big.Int).SetBytes(result)
		balance = scaleDown(raw, usdcDecimals)
		return nil
	})
	return balance, err
}

// SubmitRedeemTransaction sends a USDC transfer representing a redemption
// payout and returns the transaction hash once broadcast; it does not wait
// for confirmation.
func (c *Client) SubmitRedeemTransaction(ctx context.Context, from, to common.Address, amountUSD float64) (string, error) {
	var txHash string
	err := c.submitCheck.Do(ctx, func(ctx context.Context) error {
		nonce, err := c.rpc.PendingNonceAt(ctx, from)
		if err != nil {
			return fmt.Errorf("settlement: fetch nonce: %w", err)
		}
		gasPrice, err := c.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("settlement: suggest gas price: %w", err)
		}
		data := transferCallData(to, scaleUp(amountUSD, usdcDecimals))
		tx := types.NewTransaction(nonce, c.usdcContract, big.NewInt(0), 120000, gasPrice, data)

		signer := types.NewEIP155Signer(c.chainID)
		key, err := crypto.HexToECDSA(c.privateKey)
		if err != nil {
			return fmt.Errorf("settlement: parse private key: %w", err)
		}
		signedTx, err := types.SignTx(tx, signer, key)
		if err != nil {
			return fmt.Errorf("settlement: sign tx: %w", err)
		}
		if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
			return fmt.Errorf("settlement: broadcast tx: %w", err)
		}
		txHash = signedTx.Hash().Hex()
		return nil
	})
	return txHash, err
}

func balanceOfCallData(wallet common.Address) []byte {
	data := append([]byte{}, balanceOfMethodID...)
	data = append(data, common.LeftPadBytes(wallet.Bytes(), 32)...)
	return data
}

func transferCallData(to common.Address, amount *big.Int) []byte {
	data := append([]byte{}, transferMethodID...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

func scaleDown(raw *big.Int, decimals int) float64 {
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f := new(big.Float).Quo(new(big.Float).SetInt(raw), divisor)
	result, _ := f.Float64()
	return result
}

func scaleUp(amount float64, decimals int) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	result, _ := scaled.Int(nil)
	return result
}
