package shared

import "fmt"

// IdempotencyRedisKey builds the redis key guarding one client retry scope.
func IdempotencyRedisKey(branchID, actorID int64, operation, key string) string {
	return fmt.Sprintf("cashdesk:idem:branch:%d:actor:%d:%s:%s", branchID, actorID, operation, key)
}
