package redisstore

import "github.com/redis/go-redis/v9"

// Every script receives the queue's key base as KEYS[1]; all keys of a queue
// share one hash tag so the scripts also run on a cluster.
//
//	<base>:seq          INCR counter for message ids
//	<base>:msg:<id>     hash: payload visible token tries done created
//	<base>:pending      zset of not-done ids scored by visible (ms)
//	<base>:leased       zset of ids holding a token, scored by lease deadline
//	<base>:done         zset of done ids scored by done time
//	<base>:tokens       hash: token -> id

// ARGV: triples of payload, visible ms, created ms.
var insertScript = redis.NewScript(`
local base = KEYS[1]
local ids = {}
for i = 1, #ARGV, 3 do
	local n = redis.call('INCR', base .. ':seq')
	local id = string.format('%020d', n)
	redis.call('HSET', base .. ':msg:' .. id,
		'payload', ARGV[i], 'visible', ARGV[i + 1], 'tries', 0, 'created', ARGV[i + 2])
	redis.call('ZADD', base .. ':pending', ARGV[i + 1], id)
	ids[#ids + 1] = id
end
return ids
`)

// ARGV: now ms, token, until ms.
var claimScript = redis.NewScript(`
local base = KEYS[1]
local ids = redis.call('ZRANGEBYSCORE', base .. ':pending', '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
local id = ids[1]
local key = base .. ':msg:' .. id
local old = redis.call('HGET', key, 'token')
if old then
	redis.call('HDEL', base .. ':tokens', old)
end
redis.call('HSET', key, 'token', ARGV[2], 'visible', ARGV[3])
redis.call('HINCRBY', key, 'tries', 1)
redis.call('ZADD', base .. ':pending', ARGV[3], id)
redis.call('ZADD', base .. ':leased', ARGV[3], id)
redis.call('HSET', base .. ':tokens', ARGV[2], id)
local fields = redis.call('HGETALL', key)
table.insert(fields, 1, id)
return fields
`)

// ARGV: now ms, token, visible ms, reset tries (0|1), clear token (0|1).
var updateLeaseScript = redis.NewScript(`
local base = KEYS[1]
local id = redis.call('HGET', base .. ':tokens', ARGV[2])
if not id then
	return false
end
local key = base .. ':msg:' .. id
local cur = redis.call('HMGET', key, 'visible', 'done', 'token')
if cur[2] or cur[3] ~= ARGV[2] or not cur[1] or tonumber(cur[1]) <= tonumber(ARGV[1]) then
	return false
end
redis.call('HSET', key, 'visible', ARGV[3])
redis.call('ZADD', base .. ':pending', ARGV[3], id)
if ARGV[4] == '1' then
	redis.call('HSET', key, 'tries', 0)
end
if ARGV[5] == '1' then
	redis.call('HDEL', key, 'token')
	redis.call('HDEL', base .. ':tokens', ARGV[2])
	redis.call('ZREM', base .. ':leased', id)
else
	redis.call('ZADD', base .. ':leased', ARGV[3], id)
end
local fields = redis.call('HGETALL', key)
table.insert(fields, 1, id)
return fields
`)

// ARGV: now ms, token.
var markDoneScript = redis.NewScript(`
local base = KEYS[1]
local id = redis.call('HGET', base .. ':tokens', ARGV[2])
if not id then
	return false
end
local key = base .. ':msg:' .. id
local cur = redis.call('HMGET', key, 'visible', 'done', 'token')
if cur[2] or cur[3] ~= ARGV[2] or not cur[1] or tonumber(cur[1]) <= tonumber(ARGV[1]) then
	return false
end
redis.call('HDEL', key, 'token', 'visible')
redis.call('HSET', key, 'done', ARGV[1])
redis.call('HDEL', base .. ':tokens', ARGV[2])
redis.call('ZREM', base .. ':pending', id)
redis.call('ZREM', base .. ':leased', id)
redis.call('ZADD', base .. ':done', ARGV[1], id)
local fields = redis.call('HGETALL', key)
table.insert(fields, 1, id)
return fields
`)

var deleteDoneScript = redis.NewScript(`
local base = KEYS[1]
local ids = redis.call('ZRANGE', base .. ':done', 0, -1)
for _, id in ipairs(ids) do
	redis.call('DEL', base .. ':msg:' .. id)
end
redis.call('DEL', base .. ':done')
return #ids
`)
