package main

import (
	"path/filepath"
	"strings"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"p2pescrow/native/authority"
	"p2pescrow/native/escrow"
	"p2pescrow/native/rewards"
)

const (
	testDispute = "0x0101010101010101010101010101010101010101010101010101010101010101"
	testJurors  = "0x3131313131313131313131313131313131313131,0x3232323232323232323232323232323232323232,0x3333333333333333333333333333333333333333"
	testBuyer   = "0x2222222222222222222222222222222222222222"
	testSeller  = "0x1111111111111111111111111111111111111111"
)

func decodeSig(t *testing.T, a *approval) [][]byte {
	t.Helper()
	sig, err := hexutil.Decode(a.Signature)
	require.NoError(t, err)
	return [][]byte{sig}
}

func TestApproveJurorsIsAcceptedByMultisig(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	multisig, err := authority.NewMultisig([]ethcommon.Address{ethcrypto.PubkeyToAddress(key.PublicKey)}, 1)
	require.NoError(t, err)

	out, err := approveJurors(key, testDispute, testJurors)
	require.NoError(t, err)
	require.Equal(t, escrow.ActionAssignJurors, out.Action)

	disputeID, err := parseHash(testDispute)
	require.NoError(t, err)
	var jurors [escrow.JurorCount][20]byte
	for i, raw := range strings.Split(testJurors, ",") {
		jurors[i] = ethcommon.HexToAddress(raw)
	}
	subject := escrow.JurorAssignmentSubject(disputeID, jurors)
	require.NoError(t, multisig.Authorize(escrow.ActionAssignJurors, subject, decodeSig(t, out)))
}

func TestApproveVerdictBindsParties(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	multisig, err := authority.NewMultisig([]ethcommon.Address{ethcrypto.PubkeyToAddress(key.PublicKey)}, 1)
	require.NoError(t, err)

	out, err := approveVerdict(key, testDispute, testBuyer, testSeller)
	require.NoError(t, err)

	disputeID, err := parseHash(testDispute)
	require.NoError(t, err)
	buyer := ethcommon.HexToAddress(testBuyer)
	seller := ethcommon.HexToAddress(testSeller)
	require.NoError(t, multisig.Authorize(escrow.ActionExecuteVerdict, escrow.VerdictSubject(disputeID, buyer, seller), decodeSig(t, out)))

	swapped := escrow.VerdictSubject(disputeID, seller, buyer)
	require.Error(t, multisig.Authorize(escrow.ActionExecuteVerdict, swapped, decodeSig(t, out)))
}

func TestApproveRewardParamsValidates(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	params := rewards.DefaultParams()
	out, err := approveRewardParams(key, params, 1_700_000_000)
	require.NoError(t, err)
	require.Equal(t, rewards.ActionUpdateParams, out.Action)
	subject := rewards.ParamsSubject(params, 1_700_000_000)
	require.Equal(t, hexutil.Encode(subject[:]), out.Subject)
	stale := rewards.ParamsSubject(params, 0)
	require.NotEqual(t, hexutil.Encode(stale[:]), out.Subject)

	_, err = approveRewardParams(key, params, -1)
	require.Error(t, err)

	params.MinTradeVolume = 0
	_, err = approveRewardParams(key, params, 0)
	require.Error(t, err)
}

func TestApproveJurorsRejectsBadInput(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	_, err = approveJurors(key, "0x01", testJurors)
	require.Error(t, err)
	_, err = approveJurors(key, testDispute, testBuyer)
	require.Error(t, err)
	_, err = approveJurors(key, testDispute, testBuyer+","+testSeller+",nope")
	require.Error(t, err)
}

func TestKeySourceOrder(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	encoded := hexutil.Encode(ethcrypto.FromECDSA(key))

	src := &keySource{lookup: func(name string) (string, bool) {
		require.Equal(t, adminKeyEnv, name)
		return encoded, true
	}}
	loaded, err := src.Load()
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(loaded.PublicKey))

	path := filepath.Join(t.TempDir(), "admin.key")
	require.NoError(t, ethcrypto.SaveECDSA(path, key))
	fromFile, err := (&keySource{file: path, lookup: func(string) (string, bool) { return "", true }}).Load()
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), ethcrypto.PubkeyToAddress(fromFile.PublicKey))

	empty := &keySource{lookup: func(string) (string, bool) { return " ", true }}
	_, err = empty.Load()
	require.Error(t, err)

	missing := &keySource{lookup: func(string) (string, bool) { return "", false }}
	_, err = missing.Load()
	require.Error(t, err)
}
