package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/notary/pkg/notary"
)

// Redis implements the ledger on Redis. Reads inside a transaction go
// straight to the server; writes are buffered and committed by
// redisCommitScript, which re-checks every precondition and applies the
// whole change set in one atomic step. Concurrent transactions touching the
// same balance never conflict: balances move by INCRBY/DECRBY deltas.
//
// Layout (prefix defaults to "notary"):
//
//	<prefix>:balance:<hex identity>  string, decimal uint64
//	<prefix>:slot:<hex address>      hash {owner, data}
//	<prefix>:slots                   set of hex addresses
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a ledger over an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "notary"
	}
	return &Redis{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, prefix), nil
}

func (r *Redis) balanceKey(id notary.Identity) string {
	return r.prefix + ":balance:" + id.String()
}

func (r *Redis) slotKey(addr notary.Address) string {
	return r.prefix + ":slot:" + addr.String()
}

func (r *Redis) indexKey() string { return r.prefix + ":slots" }

// redisCommitScript applies one transaction atomically.
// KEYS[1]          = slot index set
// KEYS[2..n+1]     = new slot keys
// KEYS[n+2..n+m+1] = touched balance keys
// ARGV[1] = n, ARGV[2] = m
// then per slot (member, owner, data), then per balance (debit, credit).
// Returns "ok", "occupied", "insufficient" or "overflow"; nothing is written
// unless it returns "ok".
var redisCommitScript = redis.NewScript(`
local function gte(a, b)
    if #a ~= #b then
        return #a > #b
    end
    return a >= b
end

local n = tonumber(ARGV[1])
local m = tonumber(ARGV[2])
local base = 3 + 3 * n

for i = 1, n do
    if redis.call("EXISTS", KEYS[1 + i]) == 1 then
        return "occupied"
    end
end

for j = 1, m do
    local bal = redis.call("GET", KEYS[1 + n + j]) or "0"
    local debit = ARGV[base + 2 * (j - 1)]
    local credit = ARGV[base + 2 * (j - 1) + 1]
    if not gte(bal, debit) then
        return "insufficient"
    end
    -- Lua numbers are doubles; keep well clear of the int64 limit.
    if tonumber(bal) - tonumber(debit) + tonumber(credit) > 9.2e18 then
        return "overflow"
    end
end

for i = 1, n do
    local a = 3 + 3 * (i - 1)
    redis.call("HSET", KEYS[1 + i], "owner", ARGV[a + 1], "data", ARGV[a + 2])
    redis.call("SADD", KEYS[1], ARGV[a])
end

for j = 1, m do
    local key = KEYS[1 + n + j]
    local debit = ARGV[base + 2 * (j - 1)]
    local credit = ARGV[base + 2 * (j - 1) + 1]
    if debit ~= "0" then
        redis.call("DECRBY", key, debit)
    end
    if credit ~= "0" then
        redis.call("INCRBY", key, credit)
    end
end

return "ok"
`)

// Atomic runs fn against live reads and commits its buffered writes with
// redisCommitScript.
func (r *Redis) Atomic(ctx context.Context, fn func(ctx context.Context, tx notary.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &redisTx{r: r}
	t.overlay = newOverlay(t.loadBalance, t.loadSlotExists)
	if err := fn(ctx, t); err != nil {
		return err
	}
	ids := t.touched()
	if len(t.slots) == 0 && len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, 1+len(t.slots)+len(ids))
	keys = append(keys, r.indexKey())
	args := make([]any, 0, 2+3*len(t.slots)+2*len(ids))
	args = append(args, len(t.slots), len(ids))
	for addr, slot := range t.slots {
		keys = append(keys, r.slotKey(addr))
		args = append(args, addr.String(), slot.Owner[:], slot.Data)
	}
	for _, id := range ids {
		keys = append(keys, r.balanceKey(id))
		args = append(args,
			strconv.FormatUint(t.debits[id], 10),
			strconv.FormatUint(t.credits[id], 10))
	}

	res, err := redisCommitScript.Run(ctx, r.client, keys, args...).Text()
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "occupied":
		return notary.ErrSlotOccupied
	case "insufficient":
		return notary.ErrInsufficientFunds
	case "overflow":
		return notary.ErrBalanceOverflow
	default:
		return fmt.Errorf("redis commit: unexpected reply %q", res)
	}
}

// Credit adds amount to id's balance.
func (r *Redis) Credit(ctx context.Context, id notary.Identity, amount uint64) error {
	return r.Atomic(ctx, func(ctx context.Context, tx notary.Tx) error {
		return tx.(*redisTx).Credit(ctx, id, amount)
	})
}

func (r *Redis) Balance(ctx context.Context, id notary.Identity) (uint64, error) {
	return getBalance(ctx, r.client, r.balanceKey(id))
}

func (r *Redis) Slot(ctx context.Context, addr notary.Address) (notary.Slot, error) {
	fields, err := r.client.HGetAll(ctx, r.slotKey(addr)).Result()
	if err != nil {
		return notary.Slot{}, fmt.Errorf("redis slot: %w", err)
	}
	if len(fields) == 0 {
		return notary.Slot{}, notary.ErrSlotNotFound
	}
	return decodeSlot(addr, fields)
}

// Scan reads every indexed slot and filters client-side.
func (r *Redis) Scan(ctx context.Context, f notary.Filter) ([]notary.Slot, error) {
	members, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	addrs := make([]notary.Address, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, m := range members {
			addr, err := notary.ParseAddress(m)
			if err != nil {
				continue
			}
			addrs = append(addrs, addr)
			cmds = append(cmds, p.HGetAll(ctx, r.slotKey(addr)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	var out []notary.Slot
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		slot, err := decodeSlot(addrs[i], fields)
		if err != nil {
			return nil, err
		}
		if f.Match(slot.Data) {
			out = append(out, slot)
		}
	}
	sortSlots(out)
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }

type redisTx struct {
	*overlay
	r *Redis
}

// Now uses the Redis server clock so every writer shares one time source.
func (t *redisTx) Now(ctx context.Context) (int64, error) {
	now, err := t.r.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", notary.ErrClock, err)
	}
	return now.Unix(), nil
}

func (t *redisTx) loadBalance(ctx context.Context, id notary.Identity) (uint64, error) {
	return getBalance(ctx, t.r.client, t.r.balanceKey(id))
}

func (t *redisTx) loadSlotExists(ctx context.Context, addr notary.Address) (bool, error) {
	n, err := t.r.client.Exists(ctx, t.r.slotKey(addr)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getBalance(ctx context.Context, c stringGetter, key string) (uint64, error) {
	bal, err := c.Get(ctx, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis balance: %w", err)
	}
	return bal, nil
}

func decodeSlot(addr notary.Address, fields map[string]string) (notary.Slot, error) {
	owner := fields["owner"]
	if len(owner) != notary.KeySize {
		return notary.Slot{}, fmt.Errorf("redis slot %s: owner has %d bytes", addr, len(owner))
	}
	slot := notary.Slot{Address: addr, Data: []byte(fields["data"])}
	copy(slot.Owner[:], owner)
	return slot, nil
}
