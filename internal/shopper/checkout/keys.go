package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/storage"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

// KeyRecord pairs a payload signature with the idempotency key minted for it.
type KeyRecord struct {
	Signature string    `json:"signature"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// KeyStore reuses the key of an unchanged payload and mints a new one for
// any change. A record older than ttl counts as absent.
type KeyStore struct {
	kv   storage.Store
	ttl  time.Duration
	now  func() time.Time
	mint func(time.Time) string
	logg *logger.Logger
}

func NewKeyStore(kv storage.Store, ttl time.Duration, logg *logger.Logger) (*KeyStore, error) {
	if kv == nil {
		return nil, errors.New("key storage required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &KeyStore{kv: kv, ttl: ttl, now: time.Now, mint: mintKey, logg: logg}, nil
}

func mintKey(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
}

// KeyFor returns the key for signature. Storage failures are logged and a
// fresh key is still returned; the worst case is one extra provider session.
func (k *KeyStore) KeyFor(ctx context.Context, signature string) string {
	now := k.now()
	var rec KeyRecord
	err := storage.GetJSON(ctx, k.kv, storage.KeyIdempotency, &rec)
	switch {
	case err == nil:
		fresh := k.ttl <= 0 || now.Sub(rec.CreatedAt) <= k.ttl
		if rec.Signature == signature && rec.Key != "" && fresh {
			return rec.Key
		}
	case !errors.Is(err, storage.ErrNotFound):
		k.logg.Error(ctx, "checkout.idempotency.load.failed", err)
	}

	rec = KeyRecord{Signature: signature, Key: k.mint(now), CreatedAt: now.UTC()}
	if err := storage.SetJSON(ctx, k.kv, storage.KeyIdempotency, rec, k.ttl); err != nil {
		k.logg.Error(ctx, "checkout.idempotency.save.failed", err)
	}
	return rec.Key
}

// Forget drops the stored record so the next submission mints a new key.
func (k *KeyStore) Forget(ctx context.Context) error {
	return k.kv.Delete(ctx, storage.KeyIdempotency)
}

type signedLine struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type signedPayload struct {
	Items          []signedLine          `json:"items"`
	PromoCode      string                `json:"promoCode"`
	ShippingMethod string                `json:"shippingMethod"`
	Address        types.ShippingAddress `json:"address"`
}

// Signature canonicalises the purchase: items sorted by variant, promo code,
// shipping method and normalized address.
func Signature(items []apiclient.CheckoutItem, promoCode, shippingMethod string, address types.ShippingAddress) string {
	lines := make([]signedLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, signedLine{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	slices.SortFunc(lines, func(a, b signedLine) int { return strings.Compare(a.VariantID, b.VariantID) })

	payload := signedPayload{
		Items:          lines,
		PromoCode:      strings.ToUpper(strings.TrimSpace(promoCode)),
		ShippingMethod: strings.ToUpper(strings.TrimSpace(shippingMethod)),
		Address:        address.Normalized(),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
