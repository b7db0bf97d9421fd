package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func addrTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func uintTopic(v *big.Int) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(v.Bytes(), 32))
}

func packBatchData(t *testing.T, ids, values []*big.Int) []byte {
	t.Helper()
	data, err := erc1155EventABI.Events["TransferBatch"].Inputs.NonIndexed().Pack(ids, values)
	if err != nil {
		t.Fatalf("packing batch data: %v", err)
	}
	return data
}

func TestDecodeERC721Transfer(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	l := types.Log{
		Topics: []common.Hash{transferSig, addrTopic(from), addrTopic(to), uintTopic(big.NewInt(42))},
	}

	ev, ok := DecodeTransferLog(l)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if ev.Kind != EventTransfer {
		t.Errorf("expected Transfer kind, got %s", ev.Kind)
	}
	if ev.From != from || ev.To != to {
		t.Errorf("unexpected from/to: %s -> %s", ev.From.Hex(), ev.To.Hex())
	}
	if len(ev.IDs) != 1 || ev.IDs[0].Int64() != 42 {
		t.Errorf("unexpected ids: %v", ev.IDs)
	}
	if ev.Values[0].Int64() != 1 {
		t.Errorf("ERC-721 transfer should have implicit value 1, got %s", ev.Values[0])
	}
}

func TestDecodeSkipsERC20Transfer(t *testing.T) {
	// ERC-20 Transfer shares the signature but carries only 3 topics.
	l := types.Log{
		Topics: []common.Hash{
			transferSig,
			addrTopic(common.HexToAddress("0xaa")),
			addrTopic(common.HexToAddress("0xbb")),
		},
		Data: common.LeftPadBytes(big.NewInt(1000).Bytes(), 32),
	}

	if _, ok := DecodeTransferLog(l); ok {
		t.Error("ERC-20 style Transfer should not decode")
	}
}

func TestDecodeTransferSingle(t *testing.T) {
	operator := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	data := append(
		common.LeftPadBytes(big.NewInt(7).Bytes(), 32),
		common.LeftPadBytes(big.NewInt(3).Bytes(), 32)...,
	)
	l := types.Log{
		Topics: []common.Hash{transferSingleSig, addrTopic(operator), addrTopic(from), addrTopic(to)},
		Data:   data,
	}

	ev, ok := DecodeTransferLog(l)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if ev.Kind != EventTransferSingle {
		t.Errorf("expected TransferSingle kind, got %s", ev.Kind)
	}
	if ev.Operator != operator {
		t.Errorf("unexpected operator %s", ev.Operator.Hex())
	}
	if ev.IDs[0].Int64() != 7 || ev.Values[0].Int64() != 3 {
		t.Errorf("unexpected id/value: %v / %v", ev.IDs, ev.Values)
	}
}

func TestDecodeTransferSingleShortData(t *testing.T) {
	l := types.Log{
		Topics: []common.Hash{transferSingleSig, {}, {}, {}},
		Data:   make([]byte, 32),
	}
	if _, ok := DecodeTransferLog(l); ok {
		t.Error("truncated TransferSingle data should not decode")
	}
}

func TestDecodeTransferBatch(t *testing.T) {
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ids := []*big.Int{big.NewInt(1), big.NewInt(42), big.NewInt(99)}
	values := []*big.Int{big.NewInt(0), big.NewInt(5), big.NewInt(1)}

	l := types.Log{
		Topics: []common.Hash{transferBatchSig, {}, {}, addrTopic(to)},
		Data:   packBatchData(t, ids, values),
	}

	ev, ok := DecodeTransferLog(l)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if ev.Kind != EventTransferBatch {
		t.Errorf("expected TransferBatch kind, got %s", ev.Kind)
	}
	if len(ev.IDs) != 3 || ev.IDs[1].Int64() != 42 || ev.Values[1].Int64() != 5 {
		t.Errorf("unexpected batch contents: %v / %v", ev.IDs, ev.Values)
	}
}

func TestDecodeTransferBatchMalformedData(t *testing.T) {
	l := types.Log{
		Topics: []common.Hash{transferBatchSig, {}, {}, {}},
		Data:   []byte{0x01, 0x02},
	}
	if _, ok := DecodeTransferLog(l); ok {
		t.Error("malformed batch data should not decode")
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	l := types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef")},
	}
	if _, ok := DecodeTransferLog(l); ok {
		t.Error("unknown event should not decode")
	}
}

func TestDeliversSingle(t *testing.T) {
	wallet := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ev := LogEvent{
		Kind:   EventTransferSingle,
		To:     wallet,
		IDs:    []*big.Int{big.NewInt(42)},
		Values: []*big.Int{big.NewInt(1)},
	}

	if !ev.Delivers(wallet, big.NewInt(42)) {
		t.Error("expected match for exact token and wallet")
	}
	if ev.Delivers(wallet, big.NewInt(43)) {
		t.Error("expected no match for different token")
	}
	if ev.Delivers(common.HexToAddress("0xcc"), big.NewInt(42)) {
		t.Error("expected no match for different wallet")
	}
}

func TestDeliversZeroQuantity(t *testing.T) {
	wallet := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ev := LogEvent{
		Kind:   EventTransferBatch,
		To:     wallet,
		IDs:    []*big.Int{big.NewInt(42)},
		Values: []*big.Int{big.NewInt(0)},
	}
	if ev.Delivers(wallet, big.NewInt(42)) {
		t.Error("zero quantity should not count as a delivery")
	}
}

func TestDeliversBatchFindsIndex(t *testing.T) {
	wallet := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	ev := LogEvent{
		Kind:   EventTransferBatch,
		To:     wallet,
		IDs:    []*big.Int{big.NewInt(1), big.NewInt(42), big.NewInt(9)},
		Values: []*big.Int{big.NewInt(0), big.NewInt(2), big.NewInt(0)},
	}
	if !ev.Delivers(wallet, big.NewInt(42)) {
		t.Error("expected batch index for token 42 to match")
	}
	if ev.Delivers(wallet, big.NewInt(9)) {
		t.Error("token 9 has zero value at its index")
	}
}

func TestCaseInsensitiveAddressMatch(t *testing.T) {
	// The same address in different hex casing must compare equal once
	// parsed into common.Address.
	lower := common.HexToAddress("0xabcdefabcdefabcdefabcdefabcdefabcdefabcd")
	upper := common.HexToAddress("0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD")

	ev := LogEvent{
		Kind:   EventTransfer,
		To:     lower,
		IDs:    []*big.Int{big.NewInt(42)},
		Values: []*big.Int{big.NewInt(1)},
	}
	if !ev.Delivers(upper, big.NewInt(42)) {
		t.Error("address comparison must be case-insensitive")
	}
}
