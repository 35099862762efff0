package storage

import "github.com/go-redis/redis/v8"

// rotateScript closes the current accounting period of a currency/algorithm
// pair and archives the share slice of every chain that contributed to it.
//
// KEYS[1] current accumulator, KEYS[2] solved block record, ARGV[1] solve time.
// Returns "<chain>:<index>" for every rotated chain and stamps the same index
// on the record as chain_<C>_solve_index. The slice index is bumped once per
// call even if the rename finds no slice or an existing archive.
var rotateScript = redis.NewScript(`
local fields = redis.call('HKEYS', KEYS[1])
redis.call('HSET', KEYS[1], 'solve_time', ARGV[1])
redis.call('RENAME', KEYS[1], KEYS[2])
redis.call('HSET', KEYS[1], 'start_time', ARGV[1])

local rotated = {}
for _, field in ipairs(fields) do
	local chain = string.match(field, '^chain_(%d+)_shares$')
	if chain then
		local base = 'chain_' .. chain .. '_slice'
		local idx = redis.call('INCR', base .. '_index')
		redis.pcall('RENAMENX', base, base .. '_' .. idx)
		redis.call('HSET', KEYS[2], 'chain_' .. chain .. '_solve_index', idx)
		table.insert(rotated, chain .. ':' .. idx)
	end
end
return rotated
`)
