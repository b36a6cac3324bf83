package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota volume cap exceeded")
	ErrQuotaCooldown         = errors.New("quota cooldown active")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address.
type QuotaNow struct {
	ReqCount   uint32
	VolumeUsed uint64
	EpochID    uint64
	LastAt     uint64
}

// Quota defines the limits enforced for a module interaction per address.
// Zero values disable the corresponding limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxVolumePerEpoch   uint64
	EpochSeconds        uint32
	CooldownSeconds     uint32
}

// Epoch maps a unix timestamp onto the quota window it belongs to.
func (q Quota) Epoch(now int64) uint64 {
	if now < 0 {
		now = 0
	}
	if q.EpochSeconds == 0 {
		return 0
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and volume fit within the
// configured quota at time now. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded; on denial prev is returned
// unchanged.
func CheckQuota(q Quota, now int64, prev QuotaNow, addReq uint32, addVolume uint64) (QuotaNow, error) {
	if now < 0 {
		now = 0
	}
	ts := uint64(now)
	if q.CooldownSeconds > 0 && prev.LastAt != 0 && ts < prev.LastAt+uint64(q.CooldownSeconds) {
		return prev, ErrQuotaCooldown
	}

	nowEpoch := q.Epoch(now)
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch, LastAt: prev.LastAt}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.VolumeUsed > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.VolumeUsed += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.VolumeUsed > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	next.LastAt = ts
	return next, nil
}
