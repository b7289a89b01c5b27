package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
	"time"

	"PortfolioAnalytics/internal/event"
)

const DigestSeed = "PortfolioAnalytics:snapshot:v1"

// Digest returns the hex SHA-256 of a canonical encoding of the snapshot:
//
//	seed || user || asOf || window || balances (by symbol) || trades (replay order) || quotes (by symbol)
//
// Decimals are encoded via their trimmed string form so 1 and 1.000 hash alike.
func Digest(s Snapshot) string {
	h := sha256.New()
	h.Write([]byte(DigestSeed))
	h.Write(s.UserID[:])
	writeTime(h, s.AsOf)
	writeOptTime(h, s.Window.Start)
	writeOptTime(h, s.Window.End)

	balances := make([]event.Balance, len(s.Balances))
	copy(balances, s.Balances)
	sort.SliceStable(balances, func(i, j int) bool {
		return event.NormalizeSymbol(balances[i].Symbol) < event.NormalizeSymbol(balances[j].Symbol)
	})
	writeUint(h, uint64(len(balances)))
	for _, b := range balances {
		writeString(h, event.NormalizeSymbol(b.Symbol))
		writeString(h, b.Quantity.String())
	}

	trades := make([]event.TradeEvent, len(s.Trades))
	copy(trades, s.Trades)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].OccurredAt.Before(trades[j].OccurredAt)
	})
	writeUint(h, uint64(len(trades)))
	for _, t := range trades {
		h.Write(t.TradeID[:])
		writeString(h, event.NormalizeSymbol(t.Symbol))
		writeUint(h, uint64(t.Side))
		writeString(h, t.Quantity.String())
		writeString(h, t.Price.String())
		writeString(h, string(t.Status))
		writeTime(h, t.OccurredAt)
	}

	symbols := make([]string, 0, len(s.Quotes))
	for sym := range s.Quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	writeUint(h, uint64(len(symbols)))
	for _, sym := range symbols {
		q := s.Quotes[sym]
		writeString(h, sym)
		writeUint(h, uint64(q.Status))
		writeString(h, q.Price.String())
		writeTime(h, q.FetchedAt)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeString(h hash.Hash, s string) {
	writeUint(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeTime(h hash.Hash, t time.Time) {
	if t.IsZero() {
		writeUint(h, 0)
		return
	}
	writeUint(h, uint64(t.UnixNano()))
}

func writeOptTime(h hash.Hash, t *time.Time) {
	if t == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	writeTime(h, *t)
}
