package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func betLog(topic common.Hash, sender string, epoch int64, amountWei string) types.Log {
	amount, _ := new(big.Int).SetString(amountWei, 10)
	return types.Log{
		Topics: []common.Hash{
			topic,
			common.HexToHash(sender),
			common.BigToHash(big.NewInt(epoch)),
		},
		Data:        common.BigToHash(amount).Bytes(),
		TxHash:      common.HexToHash("0xdeadbeef"),
		BlockNumber: 42,
	}
}

func TestDecodeBetLog(t *testing.T) {
	lg := betLog(topicBetBull, "0xAbC0000000000000000000000000000000000001", 100, "2500000000000000000")

	ev, err := decodeBetLog(lg)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ev.Epoch)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", ev.Sender, "sender is lowercased")
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("2.5")), "wei converted at 18 decimals, got %s", ev.Amount)
	assert.Equal(t, uint64(42), ev.BlockNumber)
}

func TestDecodeBetLogRejectsShortTopics(t *testing.T) {
	_, err := decodeBetLog(types.Log{Topics: []common.Hash{topicBetBull}})
	assert.Error(t, err)
}

func TestDecodePushLog(t *testing.T) {
	t.Run("bet bull", func(t *testing.T) {
		ev := decodePushLog(betLog(topicBetBull, "0xabc0000000000000000000000000000000000001", 7, "1000000000000000000"))
		require.NotNil(t, ev)
		assert.Equal(t, EventBetBull, ev.Kind)
		require.NotNil(t, ev.Bet)
		assert.Equal(t, int64(7), ev.Bet.Epoch)
	})

	t.Run("bet bear", func(t *testing.T) {
		ev := decodePushLog(betLog(topicBetBear, "0xabc0000000000000000000000000000000000002", 7, "1000000000000000000"))
		require.NotNil(t, ev)
		assert.Equal(t, EventBetBear, ev.Kind)
	})

	t.Run("start round", func(t *testing.T) {
		lg := types.Log{Topics: []common.Hash{topicStartRound, common.BigToHash(big.NewInt(9))}}
		ev := decodePushLog(lg)
		require.NotNil(t, ev)
		assert.Equal(t, EventStartRound, ev.Kind)
		assert.Equal(t, int64(9), ev.Epoch)
	})

	t.Run("lock round", func(t *testing.T) {
		lg := types.Log{Topics: []common.Hash{topicLockRound, common.BigToHash(big.NewInt(9)), common.BigToHash(big.NewInt(1))}}
		ev := decodePushLog(lg)
		require.NotNil(t, ev)
		assert.Equal(t, EventLockRound, ev.Kind)
		assert.Equal(t, int64(9), ev.Epoch)
	})

	t.Run("unknown topic is dropped", func(t *testing.T) {
		lg := types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
		assert.Nil(t, decodePushLog(lg))
	})
}
