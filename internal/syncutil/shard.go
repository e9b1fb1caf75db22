// Package syncutil содержит примитивы для шардирования состояния по ключу.
package syncutil

import (
	"hash/fnv"
)

// ShardCount число шардов по умолчанию для всех шардированных хранилищ
const ShardCount = 256

// ShardIndex возвращает номер шарда для ключа (FNV-1a)
func ShardIndex(key string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(shards))
}

// PerShard делит общую ёмкость на шарды, минимум 1 на шард
func PerShard(total, shards int) int {
	if total <= 0 {
		return 0
	}
	n := total / shards
	if total%shards != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
