package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nativehttp "net/http"
	"sync"
	"sync/atomic"
	"time"

	eth2client "github.com/attestantio/go-eth2-client"
	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	http "github.com/attestantio/go-eth2-client/http"
	"github.com/attestantio/go-eth2-client/spec/electra"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const farFutureEpoch = phase0.Epoch(^uint64(0))

type cacheRecord struct {
	slot     phase0.Slot
	birthday time.Time

	activity map[phase0.BLSPubKey]Activity
}

// Client tracks validator activity at the chain head so the vault can
// answer "has this deposit been picked up" and "when did this validator
// exit" without a round trip per request.
type Client struct {
	logger *slog.Logger
	beacon eth2client.Service

	cancel context.CancelFunc

	updateMutex sync.Mutex
	cache       atomic.Pointer[cacheRecord]
}

var _ ValidatorProvider = (*Client)(nil)

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch level {
	case slog.LevelDebug:
		return zerolog.DebugLevel
	case slog.LevelInfo:
		return zerolog.InfoLevel
	case slog.LevelWarn:
		return zerolog.WarnLevel
	case slog.LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func NewClient(ctx context.Context, logger *slog.Logger, level slog.Level, beaconUrl string) (*Client, error) {
	out := new(Client)

	ctx, cancel := context.WithCancel(ctx)
	client, err := http.New(ctx,
		http.WithAddress(beaconUrl),
		http.WithLogLevel(slogToZerologLevel(level)),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create beacon client: %w", err)
	}

	out.logger = logger.With("component", "beacon-observer")
	out.beacon = client
	out.cancel = cancel

	// Prime the cache.
	updateCtx, updateCancel := context.WithTimeout(ctx, 60*time.Second)
	defer updateCancel()
	start := time.Now()
	out.logger.Debug("priming cache")
	err = out.updateCache(updateCtx, 0)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to prime cache: %w", err)
	}
	out.logger.Debug("primed cache", "duration", time.Since(start))

	// Subscribe to head events to update the cache.
	err = client.(eth2client.EventsProvider).Events(ctx, &api.EventsOpts{
		HeadHandler: out.handleHeadEvent,
		Topics:      []string{"head"},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to head events: %w", err)
	}
	out.logger.Debug("subscribed to head events")

	return out, nil
}

func errorIs404(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == nativehttp.StatusNotFound
	}
	return false
}

func (c *Client) updateCache(ctx context.Context, slot phase0.Slot) error {
	if !c.updateMutex.TryLock() {
		// Something else is already updating the cache.
		c.logger.Debug("cache update in progress, skipping")
		return nil
	}
	defer c.updateMutex.Unlock()

	client := c.beacon.(*http.Service)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(60 * time.Second)
	}
	commonOpts := api.CommonOpts{
		Timeout: time.Until(deadline),
	}

	// Load the current cache record.
	if slot > 0 {
		cache := c.cache.Load()
		if cache != nil && cache.slot >= slot {
			c.logger.Debug("cache is up to date, skipping")
			return nil
		}
	} else {
		// Get the head slot.
		beaconBlockHeader, err := client.BeaconBlockHeader(ctx, &api.BeaconBlockHeaderOpts{
			Block:  "head",
			Common: commonOpts,
		})
		if err != nil {
			return fmt.Errorf("failed to get beacon block header: %w", err)
		}
		slot = beaconBlockHeader.Data.Header.Message.Slot
	}

	start := time.Now()
	c.logger.Debug("updating cache", "slot", slot)

	var validators map[phase0.ValidatorIndex]*apiv1.Validator
	var pendingDeposits []*electra.PendingDeposit

	group, wgCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		validatorsResponse, err := client.Validators(wgCtx, &api.ValidatorsOpts{
			State:  fmt.Sprint(slot),
			Common: commonOpts,
		})
		if err != nil {
			return fmt.Errorf("failed to get validators: %w", err)
		}
		validators = validatorsResponse.Data
		return nil
	})
	group.Go(func() error {
		pendingDepositsResponse, err := client.PendingDeposits(wgCtx, &api.PendingDepositsOpts{
			State:  fmt.Sprint(slot),
			Common: commonOpts,
		})
		if err != nil {
			if errorIs404(err) {
				return nil
			}
			return fmt.Errorf("failed to get pending deposits: %w", err)
		}
		pendingDeposits = pendingDepositsResponse.Data
		return nil
	})
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to update cache: %w", err)
	}

	cache := new(cacheRecord)
	cache.slot = slot
	cache.birthday = time.Now()
	cache.activity = buildActivity(validators, pendingDeposits)

	c.cache.Store(cache)
	c.logger.Debug("updated cache", "duration", time.Since(start), "validators", len(cache.activity))

	return nil
}

// buildActivity folds the validator set and the pending deposit queue into
// one per-pubkey view. A pubkey with queued deposits but no validator yet
// still gets an entry, so a freshly finalized deposit is visible before the
// validator index exists.
func buildActivity(validators map[phase0.ValidatorIndex]*apiv1.Validator, pendingDeposits []*electra.PendingDeposit) map[phase0.BLSPubKey]Activity {
	activity := make(map[phase0.BLSPubKey]Activity, len(validators))

	for _, validator := range validators {
		exitEpoch := validator.Validator.ExitEpoch
		activity[validator.Validator.PublicKey] = Activity{
			Index:     validator.Index,
			Status:    validator.Status,
			Balance:   validator.Balance,
			ExitEpoch: exitEpoch,
			Exited:    exitEpoch != farFutureEpoch,
		}
	}

	for _, deposit := range pendingDeposits {
		entry := activity[deposit.Pubkey]
		if entry.Index == 0 && entry.Status == apiv1.ValidatorStateUnknown {
			entry.ExitEpoch = farFutureEpoch
		}
		entry.PendingDeposits++
		activity[deposit.Pubkey] = entry
	}

	return activity
}

func (c *Client) handleHeadEvent(ctx context.Context, head *apiv1.HeadEvent) {
	c.logger.Debug("head event", "slot", head.Slot)
	c.updateCache(ctx, head.Slot)
}

func (c *Client) Stop() {
	c.cancel()
}

// Simply pass-through for the regular validator query.
func (c *Client) LookupValidator(ctx context.Context, pubkey phase0.BLSPubKey) (*apiv1.Validator, error) {

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(12 * time.Second)
	}
	commonOpts := api.CommonOpts{
		Timeout: time.Until(deadline),
	}
	httpClient := c.beacon.(*http.Service)
	validator, err := httpClient.Validators(ctx, &api.ValidatorsOpts{
		PubKeys: []phase0.BLSPubKey{pubkey},
		State:   "head",
		Common:  commonOpts,
	})
	if err != nil {
		return nil, err
	}
	if len(validator.Data) == 0 {
		return nil, nil
	}
	return validator.Data[0], nil
}

func (c *Client) ValidatorActivity(pubkey phase0.BLSPubKey) (Activity, bool) {
	cache := c.cache.Load()
	if cache == nil {
		return Activity{}, false
	}
	entry, ok := cache.activity[pubkey]
	return entry, ok
}

func (c *Client) ExitEpoch(pubkey phase0.BLSPubKey) (phase0.Epoch, bool) {
	entry, ok := c.ValidatorActivity(pubkey)
	if !ok || !entry.Exited {
		return 0, false
	}
	return entry.ExitEpoch, true
}
