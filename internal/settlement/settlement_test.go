package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestScaleDownAndUp_RoundTrip(t *testing.T) {
	raw := big.NewInt(5_500_000) // 5.5 USDC at 6 decimals
	require.InDelta(t, 5.5, scaleDown(raw, usdcDecimals), 0.0001)

	up := scaleUp(5.5, usdcDecimals)
	require.Equal(t, raw.String(), up.String())
}

func TestTransferCallData_EncodesSelectorAndArgs(t *testing.T) {
	to := common.HexToAddress("0x000000000000000000000000000000000000aa")
	data := transferCallData(to, big.NewInt(1_000_000))

	require.Len(t, data, 4+32+32)
	require.Equal(t, transferMethodID, data[:4])
}

func TestBalanceOfCallData_PadsAddress(t *testing.T) {
	wallet := common.HexToAddress("0x000000000000000000000000000000000000bb")
	data := balanceOfCallData(wallet)

	require.Len(t, data, 4+32)
	require.Equal(t, balanceOfMethodID, data[:4])
}
