package orderstd

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

// hyperlane7683ABIJSON covers only the two settler selectors this standard
// calls besides openFor: fill(orderId, originData, fillerData) and
// settle(orderIds).
const hyperlane7683ABIJSON = `[
	{"inputs":[{"name":"orderId","type":"bytes32"},{"name":"originData","type":"bytes"},{"name":"fillerData","type":"bytes"}],"name":"fill","outputs":[],"type":"function"},
	{"inputs":[{"name":"orderIds","type":"bytes32[]"}],"name":"settle","outputs":[],"type":"function"}
]`

// inputSettlerEscrowABIJSON covers openFor(order, sponsor, signature), the
// call that opens an off-chain-signed StandardOrder on its origin settler
// before it can be filled.
const inputSettlerEscrowABIJSON = `[
	{"inputs":[{"name":"order","type":"bytes"},{"name":"sponsor","type":"address"},{"name":"signature","type":"bytes"}],"name":"openFor","outputs":[],"type":"function"}
]`

var hyperlane7683ABI abi.ABI
var inputSettlerEscrowABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(hyperlane7683ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("orderstd: parse hyperlane7683 abi: %v", err))
	}
	hyperlane7683ABI = parsed

	parsed, err = abi.JSON(strings.NewReader(inputSettlerEscrowABIJSON))
	if err != nil {
		panic(fmt.Sprintf("orderstd: parse input settler escrow abi: %v", err))
	}
	inputSettlerEscrowABI = parsed
}

func packFillCalldata(orderIDHex, originDataHex string) ([]byte, error) {
	var orderID [32]byte
	copy(orderID[:], common.FromHex(orderIDHex))
	return hyperlane7683ABI.Pack("fill", orderID, common.FromHex(originDataHex), []byte{})
}

func packClaimCalldata(orderIDHex string, _ types.FillProof) ([]byte, error) {
	var orderID [32]byte
	copy(orderID[:], common.FromHex(orderIDHex))
	return hyperlane7683ABI.Pack("settle", [][32]byte{orderID})
}

func packOpenForCalldata(rawOrderDataHex, sponsorHex, signatureHex string) ([]byte, error) {
	return inputSettlerEscrowABI.Pack("openFor", common.FromHex(rawOrderDataHex), common.HexToAddress(sponsorHex), common.FromHex(signatureHex))
}
