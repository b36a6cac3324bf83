package rewards

import "p2pescrow/core/state"

var (
	tokenKey   = []byte("rewards/token")
	userPrefix = []byte("rewards/user/")
)

func userKey(user [20]byte) []byte {
	key := make([]byte, 0, len(userPrefix)+len(user))
	key = append(key, userPrefix...)
	return append(key, user[:]...)
}

type storedToken struct {
	RatePerTrade   uint64
	RatePerVote    uint64
	MinTradeVolume uint64
	TotalSupply    uint64
	LastUpdated    uint64
}

type storedUserRewards struct {
	User            [20]byte
	TotalEarned     uint64
	TotalClaimed    uint64
	Unclaimed       uint64
	TradingVolume   uint64
	GovernanceVotes uint64
	LastTradeReward uint64
	LastVoteReward  uint64
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// loadToken returns the stored token, or one carrying initial when none has
// been written yet.
func loadToken(tx *state.Tx, initial Params) (*Token, error) {
	var stored storedToken
	ok, err := tx.KVGet(tokenKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Token{Params: initial}, nil
	}
	return &Token{
		Params: Params{
			RatePerTrade:   stored.RatePerTrade,
			RatePerVote:    stored.RatePerVote,
			MinTradeVolume: stored.MinTradeVolume,
		},
		TotalSupply: stored.TotalSupply,
		LastUpdated: int64(stored.LastUpdated),
	}, nil
}

func putToken(tx *state.Tx, token *Token) error {
	return tx.KVPut(tokenKey, &storedToken{
		RatePerTrade:   token.Params.RatePerTrade,
		RatePerVote:    token.Params.RatePerVote,
		MinTradeVolume: token.Params.MinTradeVolume,
		TotalSupply:    token.TotalSupply,
		LastUpdated:    toUnix(token.LastUpdated),
	})
}

func loadUser(tx *state.Tx, user [20]byte) (*UserRewards, error) {
	var stored storedUserRewards
	ok, err := tx.KVGet(userKey(user), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &UserRewards{User: user}, nil
	}
	return &UserRewards{
		User:            stored.User,
		TotalEarned:     stored.TotalEarned,
		TotalClaimed:    stored.TotalClaimed,
		Unclaimed:       stored.Unclaimed,
		TradingVolume:   stored.TradingVolume,
		GovernanceVotes: stored.GovernanceVotes,
		LastTradeReward: int64(stored.LastTradeReward),
		LastVoteReward:  int64(stored.LastVoteReward),
	}, nil
}

func putUser(tx *state.Tx, u *UserRewards) error {
	return tx.KVPut(userKey(u.User), &storedUserRewards{
		User:            u.User,
		TotalEarned:     u.TotalEarned,
		TotalClaimed:    u.TotalClaimed,
		Unclaimed:       u.Unclaimed,
		TradingVolume:   u.TradingVolume,
		GovernanceVotes: u.GovernanceVotes,
		LastTradeReward: toUnix(u.LastTradeReward),
		LastVoteReward:  toUnix(u.LastVoteReward),
	})
}
