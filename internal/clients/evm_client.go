package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/necko-moe/necko3-core/internal/interfaces"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferTopic is the topic0 of the ERC-20 Transfer(address,address,uint256) event
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMClient reads transfers from an EVM JSON-RPC endpoint. It implements
// interfaces.LedgerReader for account-family chains.
type EVMClient struct {
	rpc     *ethclient.Client
	chainID *big.Int
	signer  types.Signer
}

// NewEVMClient dials the endpoint and caches the chain id for sender recovery
func NewEVMClient(ctx context.Context, rpcURL string) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	return &EVMClient{
		rpc:     rpc,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// TipHeight returns the current chain head height
func (c *EVMClient) TipHeight(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// TransfersInBlock returns every native and ERC-20 transfer in one block that
// lands on a watched address. Native transfers carry log index -1; token
// transfers carry the log's index within the block.
func (c *EVMClient) TransfersInBlock(ctx context.Context, height uint64, watch interfaces.WatchList) ([]interfaces.Transfer, error) {
	if watch.Empty() {
		return nil, nil
	}

	block, err := c.rpc.BlockByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %d: %w", height, err)
	}

	var transfers []interfaces.Transfer

	for _, tx := range block.Transactions() {
		to := tx.To()
		if to == nil || tx.Value().Sign() <= 0 {
			continue
		}
		toAddr := strings.ToLower(to.Hex())
		if !watch.HasAddress(toAddr) {
			continue
		}

		fromAddr := ""
		if from, err := types.Sender(c.signer, tx); err == nil {
			fromAddr = strings.ToLower(from.Hex())
		}

		transfers = append(transfers, interfaces.Transfer{
			TxHash:      strings.ToLower(tx.Hash().Hex()),
			LogIndex:    -1,
			FromAddress: fromAddr,
			ToAddress:   toAddr,
			AmountRaw:   new(big.Int).Set(tx.Value()),
			BlockNumber: height,
		})
	}

	if len(watch.TokenContracts) > 0 {
		contracts := make([]common.Address, 0, len(watch.TokenContracts))
		for _, contract := range watch.TokenContracts {
			contracts = append(contracts, common.HexToAddress(contract))
		}

		blockHash := block.Hash()
		logs, err := c.rpc.FilterLogs(ctx, ethereum.FilterQuery{
			BlockHash: &blockHash,
			Addresses: contracts,
			Topics:    [][]common.Hash{{transferTopic}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to filter logs in block %d: %w", height, err)
		}

		for _, lg := range logs {
			if lg.Removed || len(lg.Topics) < 3 {
				continue
			}
			toAddr := strings.ToLower(common.BytesToAddress(lg.Topics[2].Bytes()).Hex())
			if !watch.HasAddress(toAddr) {
				continue
			}
			amount := new(big.Int).SetBytes(lg.Data)
			if amount.Sign() <= 0 {
				continue
			}

			transfers = append(transfers, interfaces.Transfer{
				TxHash:        strings.ToLower(lg.TxHash.Hex()),
				LogIndex:      int(lg.Index),
				FromAddress:   strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
				ToAddress:     toAddr,
				TokenContract: strings.ToLower(lg.Address.Hex()),
				AmountRaw:     amount,
				BlockNumber:   height,
			})
		}
	}

	return transfers, nil
}

// TransactionBlock looks up the block a transaction is currently mined in.
// found=false means the transaction is gone from the canonical chain.
func (c *EVMClient) TransactionBlock(ctx context.Context, txHash string) (uint64, bool, error) {
	receipt, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to fetch receipt %s: %w", txHash, err)
	}
	return receipt.BlockNumber.Uint64(), true, nil
}

// Close releases the underlying RPC connection
func (c *EVMClient) Close() {
	c.rpc.Close()
}
