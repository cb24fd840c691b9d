package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var errInsufficientBalance = errors.New("insufficient balance")

// Ledger tracks spendable balances per address and escrow holds per entity.
// All mutations go through a staged Tx so a failed check moves nothing.
type Ledger struct {
	mu        sync.Mutex
	available map[common.Address]*big.Int
	holds     map[common.Hash]*hold
	minted    *big.Int
}

type hold struct {
	owner  common.Address
	amount *big.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		available: make(map[common.Address]*big.Int),
		holds:     make(map[common.Hash]*hold),
		minted:    big.NewInt(0),
	}
}

// Credit mints amount into addr's spendable balance.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available[addr] = new(big.Int).Add(l.balanceLocked(addr), amount)
	l.minted.Add(l.minted, amount)
	return nil
}

// Available returns addr's spendable balance.
func (l *Ledger) Available(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(addr))
}

// Held returns the amount currently escrowed under id.
func (l *Ledger) Held(id common.Hash) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holds[id]; ok {
		return new(big.Int).Set(h.amount)
	}
	return big.NewInt(0)
}

// Escrowed returns the sum of all holds owned by addr.
func (l *Ledger) Escrowed(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := big.NewInt(0)
	for _, h := range l.holds {
		if h.owner == addr {
			total.Add(total, h.amount)
		}
	}
	return total
}

// Supply returns (minted, sum of balances and holds). The two are equal
// unless the ledger is corrupt.
func (l *Ledger) Supply() (minted *big.Int, accounted *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	accounted = big.NewInt(0)
	for _, v := range l.available {
		accounted.Add(accounted, v)
	}
	for _, h := range l.holds {
		accounted.Add(accounted, h.amount)
	}
	return new(big.Int).Set(l.minted), accounted
}

func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if v, ok := l.available[addr]; ok {
		return v
	}
	return big.NewInt(0)
}

// Tx is a set of staged ledger movements applied together by Commit.
type Tx struct {
	accounts map[common.Address]*big.Int
	holds    map[common.Hash]*big.Int
	owners   map[common.Hash]common.Address
}

// NewTx starts an empty staged transaction.
func NewTx() *Tx {
	return &Tx{
		accounts: make(map[common.Address]*big.Int),
		holds:    make(map[common.Hash]*big.Int),
		owners:   make(map[common.Hash]common.Address),
	}
}

// Pay moves amount between spendable balances.
func (tx *Tx) Pay(from, to common.Address, amount *big.Int) {
	tx.account(from, new(big.Int).Neg(amount))
	tx.account(to, amount)
}

// Lock moves amount from owner's balance into the hold id.
func (tx *Tx) Lock(owner common.Address, id common.Hash, amount *big.Int) {
	tx.account(owner, new(big.Int).Neg(amount))
	tx.hold(id, amount)
	tx.owners[id] = owner
}

// Release moves amount out of hold id into to's balance.
func (tx *Tx) Release(id common.Hash, to common.Address, amount *big.Int) {
	tx.hold(id, new(big.Int).Neg(amount))
	tx.account(to, amount)
}

func (tx *Tx) account(addr common.Address, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	cur, ok := tx.accounts[addr]
	if !ok {
		cur = big.NewInt(0)
		tx.accounts[addr] = cur
	}
	cur.Add(cur, delta)
}

func (tx *Tx) hold(id common.Hash, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 {
		return
	}
	cur, ok := tx.holds[id]
	if !ok {
		cur = big.NewInt(0)
		tx.holds[id] = cur
	}
	cur.Add(cur, delta)
}

// Commit applies tx atomically. It fails without mutating anything if any
// balance or hold would go negative.
func (l *Ledger) Commit(tx *Tx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for addr, delta := range tx.accounts {
		next := new(big.Int).Add(l.balanceLocked(addr), delta)
		if next.Sign() < 0 {
			return fmt.Errorf("%w: %s needs %s more", errInsufficientBalance, addr.Hex(), new(big.Int).Neg(next))
		}
	}
	for id, delta := range tx.holds {
		cur := big.NewInt(0)
		if h, ok := l.holds[id]; ok {
			cur = h.amount
		}
		if new(big.Int).Add(cur, delta).Sign() < 0 {
			return fmt.Errorf("%w: hold %s underflow", errInsufficientBalance, id.Hex())
		}
	}

	for addr, delta := range tx.accounts {
		l.available[addr] = new(big.Int).Add(l.balanceLocked(addr), delta)
	}
	for id, delta := range tx.holds {
		h, ok := l.holds[id]
		if !ok {
			h = &hold{owner: tx.owners[id], amount: big.NewInt(0)}
			l.holds[id] = h
		}
		h.amount = new(big.Int).Add(h.amount, delta)
		if h.amount.Sign() == 0 {
			delete(l.holds, id)
		}
	}
	return nil
}
