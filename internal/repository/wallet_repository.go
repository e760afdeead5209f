package repository

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"fractea_engine/internal/entity"
	"fractea_engine/internal/port"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const walletKeyPrefix = "wallet:"

// walletRepository persists custodial wallets as per-owner blobs.
type walletRepository struct {
	store port.KVStore
}

// NewWalletRepository wraps a KVStore with wallet marshalling.
func NewWalletRepository(store port.KVStore) port.WalletRepository {
	return &walletRepository{store: store}
}

func (r *walletRepository) Get(ctx context.Context, ownerID string) (*entity.CustodialWallet, bool, error) {
	blob, ok, err := r.store.Get(ctx, walletKeyPrefix+ownerID)
	if err != nil || !ok {
		return nil, false, err
	}
	var wallet entity.CustodialWallet
	if err := json.Unmarshal(blob, &wallet); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal wallet for owner %s: %w", ownerID, err)
	}
	return &wallet, true, nil
}

func (r *walletRepository) Put(ctx context.Context, wallet *entity.CustodialWallet) error {
	blob, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet for owner %s: %w", wallet.OwnerID, err)
	}
	return r.store.Put(ctx, walletKeyPrefix+wallet.OwnerID, blob)
}

func (r *walletRepository) List(ctx context.Context) ([]*entity.CustodialWallet, error) {
	keys, err := r.store.Keys(ctx, walletKeyPrefix)
	if err != nil {
		return nil, err
	}
	wallets := make([]*entity.CustodialWallet, 0, len(keys))
	for _, key := range keys {
		blob, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var wallet entity.CustodialWallet
		if err := json.Unmarshal(blob, &wallet); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wallet blob %s: %w", key, err)
		}
		wallets = append(wallets, &wallet)
	}
	return wallets, nil
}
