package rollout

import "github.com/cespare/xxhash/v2"

// bucketCount количество корзин для процентной раскатки
const bucketCount = 100

// Bucket детерминированно относит пару (userID, flagName) к корзине [0,100)
// Имя флага входит в ключ, чтобы разные флаги раскатывались на разные подмножества
func Bucket(userID, flagName string) int {
	return int(xxhash.Sum64String(userID+":"+flagName) % bucketCount)
}
