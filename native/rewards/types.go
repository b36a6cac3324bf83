package rewards

import "errors"

var (
	ErrNoRewardsToClaim = errors.New("rewards: no rewards to claim")
	ErrTooManyRequests  = errors.New("rewards: too many requests")
	ErrInvalidParams    = errors.New("rewards: invalid params")
	ErrAdminRequired    = errors.New("rewards: admin approval required")
	ErrMathOverflow     = errors.New("rewards: math overflow")
	ErrUserRequired     = errors.New("rewards: user required")
)

// Token is the global state of the reward token.
type Token struct {
	Params      Params
	TotalSupply uint64
	LastUpdated int64
}

// UserRewards tracks what a single user has earned and claimed.
type UserRewards struct {
	User            [20]byte
	TotalEarned     uint64
	TotalClaimed    uint64
	Unclaimed       uint64
	TradingVolume   uint64
	GovernanceVotes uint64
	LastTradeReward int64
	LastVoteReward  int64
}

func addUint64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

// credit adds amount to the earned and unclaimed totals.
func (u *UserRewards) credit(amount uint64) error {
	earned, err := addUint64(u.TotalEarned, amount)
	if err != nil {
		return err
	}
	unclaimed, err := addUint64(u.Unclaimed, amount)
	if err != nil {
		return err
	}
	u.TotalEarned, u.Unclaimed = earned, unclaimed
	return nil
}
