package position

import (
	"fmt"
	"sort"
	"sync"
)

// Book indexes open positions by (user, symbol). Mutation is
// serialized per user so concurrent ticks for different users never
// contend, while two updates for the same user are ordered.
type Book struct {
	mu    sync.RWMutex
	users map[int64]*userBook
}

type userBook struct {
	mu        sync.Mutex
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{users: make(map[int64]*userBook)}
}

func (b *Book) user(id int64) *userBook {
	b.mu.Lock()
	defer b.mu.Unlock()
	ub, ok := b.users[id]
	if !ok {
		ub = &userBook{positions: make(map[string]*Position)}
		b.users[id] = ub
	}
	return ub
}

// Open adds a position. Adding to an existing symbol is an error;
// direction changes go through Close first.
func (b *Book) Open(p *Position) error {
	ub := b.user(p.UserID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	if _, exists := ub.positions[p.Symbol]; exists {
		return fmt.Errorf("position already open for user %d symbol %s", p.UserID, p.Symbol)
	}
	ub.positions[p.Symbol] = p
	return nil
}

// Close removes a position and reports whether it existed.
func (b *Book) Close(userID int64, symbol string) bool {
	ub := b.user(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	if _, ok := ub.positions[symbol]; !ok {
		return false
	}
	delete(ub.positions, symbol)
	return true
}

// Get returns the position for (user, symbol), or nil.
func (b *Book) Get(userID int64, symbol string) *Position {
	ub := b.user(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	return ub.positions[symbol]
}

// Update runs fn against the position for (user, symbol) while holding
// that user's lock. fn receives nil when no position exists. This is
// how tick processing mutates positions without races.
func (b *Book) Update(userID int64, symbol string, fn func(p *Position)) {
	ub := b.user(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	fn(ub.positions[symbol])
}

// UserPositions returns a snapshot of one user's positions, sorted by
// symbol for deterministic iteration.
func (b *Book) UserPositions(userID int64) []*Position {
	ub := b.user(userID)
	ub.mu.Lock()
	defer ub.mu.Unlock()
	out := make([]*Position, 0, len(ub.positions))
	for _, p := range ub.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Users returns the IDs of every user with at least one position.
func (b *Book) Users() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]int64, 0, len(b.users))
	for id, ub := range b.users {
		ub.mu.Lock()
		n := len(ub.positions)
		ub.mu.Unlock()
		if n > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the total number of open positions across users.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, ub := range b.users {
		ub.mu.Lock()
		total += len(ub.positions)
		ub.mu.Unlock()
	}
	return total
}
