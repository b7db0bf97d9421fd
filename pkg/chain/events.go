package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transfer event signatures (keccak256)
var (
	// Transfer(address indexed from, address indexed to, uint256 indexed tokenId)
	transferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	// TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	transferSingleSig = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")
	// TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	transferBatchSig = common.HexToHash("0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb")
)

const erc1155EventABIJSON = `[{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "operator", "type": "address"},
		{"indexed": true, "name": "from", "type": "address"},
		{"indexed": true, "name": "to", "type": "address"},
		{"indexed": false, "name": "id", "type": "uint256"},
		{"indexed": false, "name": "value", "type": "uint256"}
	],
	"name": "TransferSingle",
	"type": "event"
},{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "operator", "type": "address"},
		{"indexed": true, "name": "from", "type": "address"},
		{"indexed": true, "name": "to", "type": "address"},
		{"indexed": false, "name": "ids", "type": "uint256[]"},
		{"indexed": false, "name": "values", "type": "uint256[]"}
	],
	"name": "TransferBatch",
	"type": "event"
}]`

var erc1155EventABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc1155EventABIJSON))
	if err != nil {
		panic("chain: parsing ERC-1155 event ABI: " + err.Error())
	}
	return parsed
}()

// EventKind identifies which transfer event shape a log decoded as.
type EventKind int

const (
	EventTransfer       EventKind = iota // ERC-721 Transfer
	EventTransferSingle                  // ERC-1155 TransferSingle
	EventTransferBatch                   // ERC-1155 TransferBatch
)

func (k EventKind) String() string {
	switch k {
	case EventTransfer:
		return "Transfer"
	case EventTransferSingle:
		return "TransferSingle"
	case EventTransferBatch:
		return "TransferBatch"
	default:
		return "unknown"
	}
}

// LogEvent is a decoded transfer event. IDs and Values are parallel;
// an ERC-721 Transfer carries a single ID with an implicit value of 1.
type LogEvent struct {
	Kind     EventKind
	Operator common.Address // zero for ERC-721
	From     common.Address
	To       common.Address
	IDs      []*big.Int
	Values   []*big.Int
}

// Delivers reports whether this event moved a nonzero quantity of tokenID
// to wallet. common.Address comparison is case-insensitive by construction.
func (e LogEvent) Delivers(wallet common.Address, tokenID *big.Int) bool {
	if e.To != wallet {
		return false
	}
	for i, id := range e.IDs {
		if id.Cmp(tokenID) == 0 && e.Values[i].Sign() > 0 {
			return true
		}
	}
	return false
}

// DecodeTransferLog attempts to decode a log against the known transfer
// event shapes. Returns false if the log matches none of them; decoding is
// best-effort, not a validating parser.
func DecodeTransferLog(l types.Log) (LogEvent, bool) {
	if len(l.Topics) == 0 {
		return LogEvent{}, false
	}

	switch l.Topics[0] {
	case transferSig:
		return decodeERC721Transfer(l)
	case transferSingleSig:
		return decodeTransferSingle(l)
	case transferBatchSig:
		return decodeTransferBatch(l)
	}
	return LogEvent{}, false
}

// decodeERC721Transfer handles Transfer with all three params indexed.
// ERC-20 Transfer shares the signature but indexes only two params, so a
// three-topic log is rejected here rather than misread.
func decodeERC721Transfer(l types.Log) (LogEvent, bool) {
	if len(l.Topics) != 4 {
		return LogEvent{}, false
	}
	return LogEvent{
		Kind:   EventTransfer,
		From:   common.BytesToAddress(l.Topics[1].Bytes()),
		To:     common.BytesToAddress(l.Topics[2].Bytes()),
		IDs:    []*big.Int{new(big.Int).SetBytes(l.Topics[3].Bytes())},
		Values: []*big.Int{big.NewInt(1)},
	}, true
}

func decodeTransferSingle(l types.Log) (LogEvent, bool) {
	if len(l.Topics) != 4 || len(l.Data) < 64 {
		return LogEvent{}, false
	}
	return LogEvent{
		Kind:     EventTransferSingle,
		Operator: common.BytesToAddress(l.Topics[1].Bytes()),
		From:     common.BytesToAddress(l.Topics[2].Bytes()),
		To:       common.BytesToAddress(l.Topics[3].Bytes()),
		IDs:      []*big.Int{new(big.Int).SetBytes(l.Data[:32])},
		Values:   []*big.Int{new(big.Int).SetBytes(l.Data[32:64])},
	}, true
}

func decodeTransferBatch(l types.Log) (LogEvent, bool) {
	if len(l.Topics) != 4 {
		return LogEvent{}, false
	}

	unpacked, err := erc1155EventABI.Unpack("TransferBatch", l.Data)
	if err != nil || len(unpacked) != 2 {
		return LogEvent{}, false
	}
	ids, ok := unpacked[0].([]*big.Int)
	if !ok {
		return LogEvent{}, false
	}
	values, ok := unpacked[1].([]*big.Int)
	if !ok || len(values) != len(ids) {
		return LogEvent{}, false
	}

	return LogEvent{
		Kind:     EventTransferBatch,
		Operator: common.BytesToAddress(l.Topics[1].Bytes()),
		From:     common.BytesToAddress(l.Topics[2].Bytes()),
		To:       common.BytesToAddress(l.Topics[3].Bytes()),
		IDs:      ids,
		Values:   values,
	}, true
}
