package state

import (
	"encoding/binary"
	"strings"
)

var (
	revenueCurrentPeriodKey = []byte("revenue/period/current")
	revenueLastClosedKey    = []byte("revenue/period/last-closed")
	revenueUnexercisedKey   = []byte("revenue/grants/unexercised")
	revenueSupplyCapKey     = []byte("revenue/supply-cap")
	revenueGrantsPrefix     = []byte("revenue/grants/")
	revenueReceiptPrefix    = []byte("revenue/receipt/")
	bankBalancePrefix       = []byte("bank/balance/")
	bankSupplyPrefix        = []byte("bank/supply/")
)

func normalizeAsset(asset string) []byte {
	return []byte(strings.ToUpper(strings.TrimSpace(asset)))
}

func revenueGrantsKey(holder [20]byte) []byte {
	return kvKey(revenueGrantsPrefix, holder[:])
}

func revenueReceiptKey(periodID uint64, holder [20]byte) []byte {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], periodID)
	return kvKey(revenueReceiptPrefix, id[:], holder[:])
}

func bankBalanceKey(asset string, addr [20]byte) []byte {
	return kvKey(bankBalancePrefix, normalizeAsset(asset), []byte{'/'}, addr[:])
}

func bankSupplyKey(asset string) []byte {
	return kvKey(bankSupplyPrefix, normalizeAsset(asset))
}
