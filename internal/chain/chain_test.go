package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func believerLog(addr common.Address, timestamp *big.Int, block uint64) types.Log {
	return types.Log{
		Topics:      []common.Hash{believerTopic, common.BytesToHash(addr.Bytes())},
		Data:        common.LeftPadBytes(timestamp.Bytes(), 32),
		BlockNumber: block,
	}
}

func TestParseBelieverLog(t *testing.T) {
	t.Parallel()
	addr := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	ts := big.NewInt(1_700_000_000)

	ev, err := ParseBelieverLog(believerLog(addr, ts, 421))
	require.NoError(t, err)
	assert.Equal(t, addr, ev.Believer)
	assert.Zero(t, ts.Cmp(ev.Timestamp))
	assert.Equal(t, uint64(421), ev.BlockNumber)
}

func TestParseBelieverLogZeroTimestamp(t *testing.T) {
	t.Parallel()
	ev, err := ParseBelieverLog(believerLog(common.Address{}, big.NewInt(0), 1))
	require.NoError(t, err)
	assert.Zero(t, ev.Timestamp.Sign())
}

func TestParseBelieverLogWrongTopic(t *testing.T) {
	t.Parallel()
	lg := believerLog(common.Address{}, big.NewInt(1), 1)
	lg.Topics[0] = common.HexToHash("0x01")

	_, err := ParseBelieverLog(lg)
	assert.Error(t, err)
}

func TestParseBelieverLogMissingIndexedTopic(t *testing.T) {
	t.Parallel()
	lg := believerLog(common.Address{}, big.NewInt(1), 1)
	lg.Topics = lg.Topics[:1]

	_, err := ParseBelieverLog(lg)
	assert.Error(t, err)
}

func TestParseBelieverLogBadDataLength(t *testing.T) {
	t.Parallel()
	lg := believerLog(common.Address{}, big.NewInt(1), 1)
	lg.Data = lg.Data[:16]

	_, err := ParseBelieverLog(lg)
	assert.Error(t, err)
}

func TestBelieverTopicMatchesABI(t *testing.T) {
	t.Parallel()
	registryABI, err := abi.JSON(strings.NewReader(registryABIJSON))
	require.NoError(t, err)

	event, ok := registryABI.Events["BeliefRegistered"]
	require.True(t, ok)
	assert.Equal(t, event.ID, believerTopic)
}
