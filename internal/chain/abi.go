package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// predictionABI is the subset of the prediction contract ABI the scanner
// reads: the rounds/currentEpoch views and the bet, claim and round
// lifecycle events.
const predictionABI = `[
  {"inputs":[],"name":"currentEpoch","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"rounds","outputs":[
    {"internalType":"uint256","name":"epoch","type":"uint256"},
    {"internalType":"uint256","name":"startTimestamp","type":"uint256"},
    {"internalType":"uint256","name":"lockTimestamp","type":"uint256"},
    {"internalType":"uint256","name":"closeTimestamp","type":"uint256"},
    {"internalType":"int256","name":"lockPrice","type":"int256"},
    {"internalType":"int256","name":"closePrice","type":"int256"},
    {"internalType":"uint256","name":"lockOracleId","type":"uint256"},
    {"internalType":"uint256","name":"closeOracleId","type":"uint256"},
    {"internalType":"uint256","name":"totalAmount","type":"uint256"},
    {"internalType":"uint256","name":"bullAmount","type":"uint256"},
    {"internalType":"uint256","name":"bearAmount","type":"uint256"},
    {"internalType":"uint256","name":"rewardBaseCalAmount","type":"uint256"},
    {"internalType":"uint256","name":"rewardAmount","type":"uint256"},
    {"internalType":"bool","name":"oracleCalled","type":"bool"}],
   "stateMutability":"view","type":"function"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"sender","type":"address"},
    {"indexed":true,"internalType":"uint256","name":"epoch","type":"uint256"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"BetBull","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"sender","type":"address"},
    {"indexed":true,"internalType":"uint256","name":"epoch","type":"uint256"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"BetBear","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"address","name":"sender","type":"address"},
    {"indexed":true,"internalType":"uint256","name":"epoch","type":"uint256"},
    {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
   "name":"Claim","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"uint256","name":"epoch","type":"uint256"}],
   "name":"StartRound","type":"event"},
  {"anonymous":false,"inputs":[
    {"indexed":true,"internalType":"uint256","name":"epoch","type":"uint256"},
    {"indexed":true,"internalType":"uint256","name":"roundId","type":"uint256"},
    {"indexed":false,"internalType":"int256","name":"price","type":"int256"}],
   "name":"LockRound","type":"event"}
]`

var (
	contractABI abi.ABI

	topicBetBull    common.Hash
	topicBetBear    common.Hash
	topicClaim      common.Hash
	topicStartRound common.Hash
	topicLockRound  common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(predictionABI))
	if err != nil {
		panic("chain: invalid embedded contract ABI: " + err.Error())
	}
	contractABI = parsed

	topicBetBull = crypto.Keccak256Hash([]byte("BetBull(address,uint256,uint256)"))
	topicBetBear = crypto.Keccak256Hash([]byte("BetBear(address,uint256,uint256)"))
	topicClaim = crypto.Keccak256Hash([]byte("Claim(address,uint256,uint256)"))
	topicStartRound = crypto.Keccak256Hash([]byte("StartRound(uint256)"))
	topicLockRound = crypto.Keccak256Hash([]byte("LockRound(uint256,uint256,int256)"))
}
