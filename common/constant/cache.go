package constant

import "time"

const (
	EachItemQuantityKey = "inventory:%s:quantity"
	MemberDispenseLock  = "dispense:member_lock:%d:%d"
)

const (
	MemberDispenseLockDefaultTTL = 30 * time.Second
)
